// Package loader defines an abstraction to load the wallet key of a member
// from a persistent storage. The key is either read from the storage, or
// generated and stored for the next time.
package loader

// Generator is the interface to implement to generate a key.
type Generator interface {
	Generate() ([]byte, error)
}

// Loader is an abstraction to load a key from a storage.
type Loader interface {
	// LoadOrCreate tries to load the key and returns it if found, otherwise it
	// generates a new one using the generator and stores it.
	LoadOrCreate(Generator) ([]byte, error)

	// Load returns the key, or an error if it does not exist.
	Load() ([]byte, error)
}
