package davclient

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"
)

// MockDAVClient implements the DAVClient interface for testing
type MockDAVClient struct {
	mock.Mock
}

var _ DAVClient = (*MockDAVClient)(nil)

func (m *MockDAVClient) CreateResource(ctx context.Context, collectionURL, filename, contentType string, data []byte) (*Response, error) {
	args := m.Called(ctx, collectionURL, filename, contentType, data)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Response), args.Error(1)
}

func (m *MockDAVClient) UpdateResource(ctx context.Context, handle ResourceHandle, contentType string, data []byte) (*Response, error) {
	args := m.Called(ctx, handle, contentType, data)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Response), args.Error(1)
}

func (m *MockDAVClient) DeleteResource(ctx context.Context, handle ResourceHandle) (*Response, error) {
	args := m.Called(ctx, handle)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Response), args.Error(1)
}

func (m *MockDAVClient) FetchResource(ctx context.Context, resourceURL string) (*ResourceHandle, error) {
	args := m.Called(ctx, resourceURL)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ResourceHandle), args.Error(1)
}

func (m *MockDAVClient) FetchResources(ctx context.Context, collectionURL string, q Query) ([]ResourceHandle, error) {
	args := m.Called(ctx, collectionURL, q)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]ResourceHandle), args.Error(1)
}

func (m *MockDAVClient) CollectionToken(ctx context.Context, collectionURL string) (string, error) {
	args := m.Called(ctx, collectionURL)
	return args.String(0), args.Error(1)
}

func (m *MockDAVClient) FreeBusyQuery(ctx context.Context, collectionURL string, start, end time.Time) (*Response, error) {
	args := m.Called(ctx, collectionURL, start, end)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Response), args.Error(1)
}

func (m *MockDAVClient) DiscoverCollections(ctx context.Context, kind Kind) ([]CollectionInfo, error) {
	args := m.Called(ctx, kind)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]CollectionInfo), args.Error(1)
}
