package config

import "strings"

// ObjectStoreConfig contains S3-compatible object store configuration.
//
// PublicBaseURL is the externally visible URL prefix under which objects in
// Bucket are served. It is used to resolve a book's public source-document URL
// back to an object key, so it must match what the upload side publishes.
type ObjectStoreConfig struct {
	Endpoint      string `env:"ENDPOINT"        envDefault:"localhost:9000"`
	AccessKey     string `env:"ACCESS_KEY"`
	SecretKey     string `env:"SECRET_KEY"`
	Bucket        string `env:"BUCKET"          envDefault:"pagepress"`
	UseSSL        bool   `env:"USE_SSL"         envDefault:"false"`
	PublicBaseURL string `env:"PUBLIC_BASE_URL" envDefault:"http://localhost:9000"`
}

// Sanitize normalises object store configuration values.
func (c *ObjectStoreConfig) Sanitize() {
	c.Endpoint = strings.TrimSpace(c.Endpoint)
	c.Bucket = strings.TrimSpace(c.Bucket)
	c.PublicBaseURL = strings.TrimRight(strings.TrimSpace(c.PublicBaseURL), "/")
}
