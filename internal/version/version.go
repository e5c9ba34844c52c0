package version

// Version is the current release version
const Version = "0.3.1"
