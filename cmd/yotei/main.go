package main

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/akatsune/yotei/common/environment"
	"github.com/akatsune/yotei/common/version"
	"github.com/akatsune/yotei/internal/yotei/app"
)

func main() {
	fmt.Printf("Yotei Scheduling Assistant\n")
	fmt.Printf("Version: %s\n", version.Version)
	fmt.Printf("Commit: %s\n", version.GitCommit)
	fmt.Printf("Build Time: %s\n", version.BuildTime)
	fmt.Println()

	config, err := loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	// Validate required configuration
	if config.Matrix.Homeserver == "" {
		fmt.Fprintf(os.Stderr, "Error: MATRIX_HOMESERVER is required\n")
		os.Exit(1)
	}
	if config.Matrix.UserID == "" {
		fmt.Fprintf(os.Stderr, "Error: MATRIX_USER_ID is required\n")
		os.Exit(1)
	}
	if config.Matrix.AccessToken == "" {
		fmt.Fprintf(os.Stderr, "Error: MATRIX_ACCESS_TOKEN is required\n")
		os.Exit(1)
	}
	if len(config.Matrix.Rooms) == 0 {
		fmt.Fprintf(os.Stderr, "Error: MATRIX_ROOMS is required\n")
		os.Exit(1)
	}
	if config.NLU.AccessToken == "" {
		fmt.Fprintf(os.Stderr, "Error: NLU_ACCESS_TOKEN is required\n")
		os.Exit(1)
	}

	yotei, err := app.New(config)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize Yotei: %v\n", err)
		os.Exit(1)
	}
	defer yotei.Stop()

	if err := yotei.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error running Yotei: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig builds the application configuration. A YAML config file named
// by YOTEI_CONFIG is loaded first (when set); environment variables then
// override individual values, so a deployment can ship a file with the
// stable settings while keeping tokens in the environment.
func loadConfig() (*app.Config, error) {
	config := &app.Config{}

	if path, ok := environment.String("YOTEI_CONFIG"); ok && path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}

	config.DatabasePath = environment.StringOr("DATABASE_PATH", defaultString(config.DatabasePath, "./yotei.db"))
	config.HTTPAddr = environment.StringOr("HTTP_ADDR", config.HTTPAddr)
	config.Language = environment.StringOr("LANGUAGE", defaultString(config.Language, "en"))

	config.Matrix.Homeserver = environment.StringOr("MATRIX_HOMESERVER", config.Matrix.Homeserver)
	config.Matrix.UserID = environment.StringOr("MATRIX_USER_ID", config.Matrix.UserID)
	config.Matrix.AccessToken = environment.StringOr("MATRIX_ACCESS_TOKEN", config.Matrix.AccessToken)
	config.Matrix.Rooms = environment.StringSliceOr("MATRIX_ROOMS", config.Matrix.Rooms)

	config.NLU.AccessToken = environment.StringOr("NLU_ACCESS_TOKEN", config.NLU.AccessToken)
	config.NLU.BaseURL = environment.StringOr("NLU_BASE_URL", config.NLU.BaseURL)
	config.NLU.Timeout = environment.DurationOr("NLU_TIMEOUT", config.NLU.Timeout)
	config.NLU.RateLimit = environment.IntOr("NLU_RATE_LIMIT", config.NLU.RateLimit)

	config.OAuth.ClientID = environment.StringOr("GOOGLE_CLIENT_ID", config.OAuth.ClientID)
	config.OAuth.ClientSecret = environment.StringOr("GOOGLE_CLIENT_SECRET", config.OAuth.ClientSecret)
	config.OAuth.RedirectURL = environment.StringOr("GOOGLE_REDIRECT_URL", config.OAuth.RedirectURL)

	if config.NLU.Timeout == 0 {
		config.NLU.Timeout = 10 * time.Second
	}

	return config, nil
}

// defaultString returns s unless it is empty, in which case fallback.
func defaultString(s, fallback string) string {
	if s != "" {
		return s
	}
	return fallback
}
