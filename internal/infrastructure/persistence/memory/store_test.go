package memory

import (
	"testing"

	"github.com/stretchr/testify/suite"

	"github.com/learnhub/progression-engine/internal/domain/progression"
	"github.com/learnhub/progression-engine/internal/infrastructure/persistence/repotest"
)

func TestStoreContract(t *testing.T) {
	suite.Run(t, &repotest.RepositorySuite{
		Factory: func() progression.Repository { return NewStore() },
	})
}
