package config

// ModelsConfig maps moderation roles ("text", "vision") to upstream routes.
type ModelsConfig struct {
	Roles map[string]RoleMapping `yaml:"roles"`
}

type RoleMapping struct {
	Primary  ProviderRoute   `yaml:"primary"`
	Fallback []ProviderRoute `yaml:"fallback"`
}

type ProviderRoute struct {
	Provider string `yaml:"provider"`
	Model    string `yaml:"model"`
}
