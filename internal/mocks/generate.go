// Package mocks provides gomock implementations of the domain ports.
//
// To regenerate mocks after interface changes, run:
//
//	go generate ./internal/mocks
//
// Usage in tests:
//
//	ctrl := gomock.NewController(t)
//	store := mocks.NewMockResultStore(ctrl)
//	store.EXPECT().Save(gomock.Any(), gomock.Any()).Return(rec, nil)
package mocks

//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=ports_mock.go github.com/dontdude/markcheck/internal/domain Publisher,ResultStore,ObjectStore,TokenVerifier,UserStore
