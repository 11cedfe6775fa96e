package config

import (
	"errors"
	"fmt"
)

func (c *Config) validate() error {
	switch c.DBDriver {
	case "mysql":
		if c.DBUser == "" || c.DBName == "" {
			return errors.New("DB_USER and DB_NAME are required for mysql")
		}
		if c.DBHost == "" && c.InstanceConnectionName == "" {
			return errors.New("DB_HOST or INSTANCE_CONNECTION_NAME is required for mysql")
		}
	case "sqlite":
		if c.SQLitePath == "" {
			return errors.New("SQLITE_PATH is required for sqlite")
		}
	default:
		return fmt.Errorf("unsupported DB_DRIVER %q", c.DBDriver)
	}

	switch c.AuthProvider {
	case "firebase":
		if c.FirebaseProjectID == "" {
			return errors.New("FIREBASE_PROJECT_ID is required for firebase auth")
		}
	case "jwt":
		if len(c.JWTSecret) < 16 {
			return errors.New("JWT_SECRET must be at least 16 bytes")
		}
	default:
		return fmt.Errorf("unsupported AUTH_PROVIDER %q", c.AuthProvider)
	}

	if c.GatewayTimeout <= 0 {
		return errors.New("GATEWAY_TIMEOUT must be positive")
	}
	if c.SubscriberBuffer <= 0 {
		return errors.New("SUBSCRIBER_BUFFER must be positive")
	}
	return nil
}
