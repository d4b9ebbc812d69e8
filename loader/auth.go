package loader

import (
	"os"

	"oras.land/oras-go/v2/registry/remote/auth"
)

// envCredential builds a registry credential from the environment.
// MORPHIR_REGISTRY_USERNAME / MORPHIR_REGISTRY_PASSWORD apply to every
// registry; anonymous access is used when they are unset.
func envCredential(registry string) auth.CredentialFunc {
	username := os.Getenv("MORPHIR_REGISTRY_USERNAME")
	password := os.Getenv("MORPHIR_REGISTRY_PASSWORD")
	if username == "" && password == "" {
		return nil
	}
	return auth.StaticCredential(registry, auth.Credential{
		Username: username,
		Password: password,
	})
}
