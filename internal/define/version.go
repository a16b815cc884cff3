package define

// Version is "dev" in development builds; production builds inject the
// real version via:
//   go build -ldflags="-X settingsvc/internal/define.Version=1.0.0"
var Version = "dev"
