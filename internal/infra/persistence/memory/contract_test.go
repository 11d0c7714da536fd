package memory

import (
	"testing"

	"unitledger/internal/infra/persistence/storetest"
	"unitledger/pkg/domain"
)

func TestMemoryStoreContract(t *testing.T) {
	storetest.RunContract(t, func(*testing.T) domain.PersistentStore { return NewStore(nil) })
}
