//go:build !production

package define

// Env defaults to "development"; -tags production overrides it in env_prod.go.
var Env = "development"
