package storage

import "certsend/internal/ports"

// Provider is the archive storage contract.
// It is an alias to ports.StorageProvider to keep call-sites simple.
type Provider = ports.StorageProvider
