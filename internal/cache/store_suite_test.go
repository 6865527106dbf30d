package cache

import (
	"context"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/suite"

	cachemocks "github.com/BearBump/OrderHub/internal/cache/mocks"
)

type StoreSuite struct {
	suite.Suite

	backend *cachemocks.MockBytesCache
	store   *Store
}

func (s *StoreSuite) SetupTest() {
	s.backend = &cachemocks.MockBytesCache{}
	s.store = NewStore(s.backend)
}

func (s *StoreSuite) TestGetOrSet_HitSkipsComputeAndSet() {
	s.backend.On("Get", mock.Anything, "order:o1").
		Return([]byte(`{"id":"o1"}`), true, nil).
		Once()

	b, err := s.store.GetOrSet(context.Background(), "order:o1", TTLMedium, func(context.Context) ([]byte, error) {
		s.FailNow("compute must not run on hit")
		return nil, nil
	})
	s.Require().NoError(err)
	s.Require().Equal([]byte(`{"id":"o1"}`), b)
	s.backend.AssertNotCalled(s.T(), "Set", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	s.backend.AssertExpectations(s.T())
}

func (s *StoreSuite) TestGetOrSet_MissComputesAndPopulates() {
	s.backend.On("Get", mock.Anything, "order:o1").
		Return([]byte(nil), false, nil).
		Once()
	s.backend.On("Set", mock.Anything, "order:o1", []byte("computed"), TTLShort).
		Return(nil).
		Once()

	b, err := s.store.GetOrSet(context.Background(), "order:o1", TTLShort, func(context.Context) ([]byte, error) {
		return []byte("computed"), nil
	})
	s.Require().NoError(err)
	s.Require().Equal([]byte("computed"), b)
	s.backend.AssertExpectations(s.T())
}

func (s *StoreSuite) TestGetOrSet_BackendErrorDegradesToMiss() {
	// Лежащий backend не валит запрос: промах, compute, попытка Set.
	s.backend.On("Get", mock.Anything, "order:o1").
		Return([]byte(nil), false, errors.New("redis down")).
		Once()
	s.backend.On("Set", mock.Anything, "order:o1", []byte("fresh"), TTLMedium).
		Return(errors.New("redis down")).
		Once()

	b, err := s.store.GetOrSet(context.Background(), "order:o1", TTLMedium, func(context.Context) ([]byte, error) {
		return []byte("fresh"), nil
	})
	s.Require().NoError(err)
	s.Require().Equal([]byte("fresh"), b)
	s.backend.AssertExpectations(s.T())
}

func (s *StoreSuite) TestGetOrSet_ComputeErrorPropagates() {
	s.backend.On("Get", mock.Anything, "order:o1").
		Return([]byte(nil), false, nil).
		Once()

	_, err := s.store.GetOrSet(context.Background(), "order:o1", TTLMedium, func(context.Context) ([]byte, error) {
		return nil, errors.New("pg down")
	})
	s.Require().EqualError(err, "pg down")
	s.backend.AssertNotCalled(s.T(), "Set", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func (s *StoreSuite) TestInvalidate_PassesKeysThrough() {
	s.backend.On("Delete", mock.Anything, []string{"order:o1", "order:o2"}).
		Return(nil).
		Once()

	s.store.Invalidate(context.Background(), "order:o1", "order:o2")
	s.backend.AssertExpectations(s.T())
}

func (s *StoreSuite) TestInvalidate_BackendErrorIsSwallowed() {
	s.backend.On("Delete", mock.Anything, []string{"order:o1"}).
		Return(errors.New("redis down")).
		Once()

	s.store.Invalidate(context.Background(), "order:o1")
	s.backend.AssertExpectations(s.T())
}

func (s *StoreSuite) TestInvalidatePrefix_PassesPrefixThrough() {
	s.backend.On("DeletePrefix", mock.Anything, "orders:u1:").
		Return(nil).
		Once()

	s.store.InvalidatePrefix(context.Background(), "orders:u1:")
	s.backend.AssertExpectations(s.T())

	// пустой префикс не доходит до backend
	s.store.InvalidatePrefix(context.Background(), "")
	s.backend.AssertNumberOfCalls(s.T(), "DeletePrefix", 1)
}

func TestStoreSuite(t *testing.T) {
	suite.Run(t, new(StoreSuite))
}
