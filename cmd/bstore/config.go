package main

import (
	"os"
	"strconv"

	"github.com/kjk/bstore/transport"
)

// getEnv returns a value from -env file, falling back to environment variables
func (a *app) getEnv(key string) string {
	if v, ok := a.env[key]; ok {
		return v
	}
	return os.Getenv(key)
}

func (a *app) s3Config() *transport.S3Config {
	insecure, _ := strconv.ParseBool(a.getEnv("BSTORE_S3_INSECURE"))
	return &transport.S3Config{
		Access:   a.getEnv("BSTORE_S3_ACCESS"),
		Secret:   a.getEnv("BSTORE_S3_SECRET"),
		Bucket:   a.getEnv("BSTORE_S3_BUCKET"),
		Endpoint: a.getEnv("BSTORE_S3_ENDPOINT"),
		Region:   a.getEnv("BSTORE_S3_REGION"),
		Insecure: insecure,
	}
}

func (a *app) sftpConfig() *transport.SFTPConfig {
	return &transport.SFTPConfig{
		User:     a.getEnv("BSTORE_SFTP_USER"),
		Addr:     a.getEnv("BSTORE_SFTP_ADDR"),
		KeyPath:  a.getEnv("BSTORE_SFTP_KEY"),
		Password: a.getEnv("BSTORE_SFTP_PASSWORD"),
	}
}
