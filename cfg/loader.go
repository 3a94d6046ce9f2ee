package cfg

type Loader interface {
	Load() (*Config, error)
}

func NewLoader(l Loader) (Loader, error) {
	return l, nil
}
