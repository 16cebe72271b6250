package conventions

import "path/filepath"

const (
	// DefaultDataDir is the default applyflow data directory name (relative to home).
	DefaultDataDir = ".applyflow"
	// DBFile is the SQLite database filename.
	DBFile = "applyflow.db"
	// CompaniesDir is the subdirectory for the company portal YAML configs.
	CompaniesDir = "companies"
	// ProfilesDir is the subdirectory for the `<user-id>.yaml` profiles.
	ProfilesDir = "profiles"

	// DotEnvFile is the optional dotenv file loaded from the working directory.
	DotEnvFile = ".env"

	// DefaultListenAddress is the default HTTP API address.
	DefaultListenAddress = ":8080"
)

// DataDir returns the applyflow data directory under a home directory.
func DataDir(homeDir string) string {
	return filepath.Join(homeDir, DefaultDataDir)
}

// DBPath returns the SQLite database path of a data directory.
func DBPath(dataDir string) string {
	return filepath.Join(dataDir, DBFile)
}

// CompaniesPath returns the company configs directory of a data directory.
func CompaniesPath(dataDir string) string {
	return filepath.Join(dataDir, CompaniesDir)
}

// ProfilesPath returns the profiles directory of a data directory.
func ProfilesPath(dataDir string) string {
	return filepath.Join(dataDir, ProfilesDir)
}
