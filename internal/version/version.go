package version

// Version is the current release of steam-weaver
var Version = "0.3.0"
