package server

type Config struct {
	// ListenAddr is the HTTP listen address for the API server.
	ListenAddr string

	// MaxListLimit caps the limit query parameter on scan listings.
	MaxListLimit int
}

func DefaultConfig() Config {
	return Config{
		ListenAddr:   ":8080",
		MaxListLimit: 100,
	}
}

func (c Config) withDefaults() Config {
	if c.ListenAddr == "" {
		c.ListenAddr = ":8080"
	}
	if c.MaxListLimit <= 0 {
		c.MaxListLimit = 100
	}
	return c
}
