package config

import (
	"flag"
	"os"
	"time"

	"github.com/dstepanovs/teamplan/internal/flagx"
)

// parseFlags overlays Config fields from command-line flags. Arguments are
// pre-filtered so flags owned by other components are ignored.
//
//	-a string   HTTP bind address
//	-d string   PostgreSQL DSN
//	-s string   JWT HMAC secret
//	-k string   field encryption key, hex
//	-t int      access token validity, minutes
//	-n int      page size for list endpoints
//	-u/-p/-b/-g/-e   S3 user/password/bucket/region/endpoint
func parseFlags(config *Config) {
	args := flagx.FilterArgs(os.Args[1:], []string{"-a", "-d", "-s", "-k", "-t", "-n", "-u", "-p", "-b", "-g", "-e"})

	fs := flag.NewFlagSet("server", flag.ContinueOnError)

	fs.StringVar(&config.EndpointAddr, "a", config.EndpointAddr, "address and port to run server")
	fs.StringVar(&config.DatabaseDSN, "d", config.DatabaseDSN, "database DSN")
	fs.StringVar(&config.JWTSecret, "s", config.JWTSecret, "JWT secret key")
	fs.StringVar(&config.EncryptionKey, "k", config.EncryptionKey, "field encryption key (hex)")

	accessTokenValidity := fs.Int("t", int(config.AccessTokenValidityDuration.Minutes()), "access token validity (minutes)")
	fs.IntVar(&config.PageSize, "n", config.PageSize, "page size for list endpoints")

	fs.StringVar(&config.S3RootUser, "u", config.S3RootUser, "S3 root user")
	fs.StringVar(&config.S3RootPassword, "p", config.S3RootPassword, "S3 root password")
	fs.StringVar(&config.S3Bucket, "b", config.S3Bucket, "S3 bucket")
	fs.StringVar(&config.S3Region, "g", config.S3Region, "S3 region")
	fs.StringVar(&config.S3BaseEndpoint, "e", config.S3BaseEndpoint, "S3 base endpoint")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}

	config.AccessTokenValidityDuration = time.Duration(*accessTokenValidity) * time.Minute
}
