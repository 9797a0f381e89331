package common

// File permission constants for consistent security across the application
const (
	// FilePermissionSecure is used for sensitive files (config, credentials)
	FilePermissionSecure = 0600

	// DirPermissionSecure is used for directories containing sensitive files
	// such as the run history store
	DirPermissionSecure = 0700
)
