package output

type ConfigPort interface {
	GetWithDefault(key string, defaultValue string) string
	GetBool(key string, defaultValue bool) bool
}
