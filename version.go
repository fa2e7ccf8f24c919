package ragchat

// Version is set at build time with -ldflags "-X github.com/a-h/ragchat.Version=...".
var Version = "dev"
