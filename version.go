package rawray

// Version is the current rawray release version.
const Version = "0.4.0"
