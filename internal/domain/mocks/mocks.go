// Package mocks holds testify mocks of the domain ports.
package mocks

import (
	"github.com/stretchr/testify/mock"

	"github.com/fairyhunter13/emoticon-relay/internal/domain"
)

// MockImageSearcher is a mock of domain.ImageSearcher.
type MockImageSearcher struct {
	mock.Mock
}

// Search provides a mock function with given fields: ctx, keyword
func (m *MockImageSearcher) Search(ctx domain.Context, keyword string) ([]domain.SearchResult, error) {
	ret := m.Called(ctx, keyword)
	var r0 []domain.SearchResult
	if rf, ok := ret.Get(0).(func(domain.Context, string) []domain.SearchResult); ok {
		r0 = rf(ctx, keyword)
	} else if ret.Get(0) != nil {
		r0 = ret.Get(0).([]domain.SearchResult)
	}
	return r0, ret.Error(1)
}

// MockKeywordSuggester is a mock of domain.KeywordSuggester.
type MockKeywordSuggester struct {
	mock.Mock
}

// SuggestAlternative provides a mock function with given fields: ctx, keyword, credential
func (m *MockKeywordSuggester) SuggestAlternative(ctx domain.Context, keyword, credential string) (string, error) {
	ret := m.Called(ctx, keyword, credential)
	return ret.String(0), ret.Error(1)
}

// MockChatCompleter is a mock of domain.ChatCompleter.
type MockChatCompleter struct {
	mock.Mock
}

// Complete provides a mock function with given fields: ctx, apiKey, req
func (m *MockChatCompleter) Complete(ctx domain.Context, apiKey string, req domain.ChatCompletionRequest) (domain.ChatCompletion, error) {
	ret := m.Called(ctx, apiKey, req)
	var r0 domain.ChatCompletion
	if ret.Get(0) != nil {
		r0 = ret.Get(0).(domain.ChatCompletion)
	}
	return r0, ret.Error(1)
}

// MockQuotaStore is a mock of domain.QuotaStore.
type MockQuotaStore struct {
	mock.Mock
}

// CheckAndIncrement provides a mock function with given fields: ctx, clientID, dailyLimit
func (m *MockQuotaStore) CheckAndIncrement(ctx domain.Context, clientID string, dailyLimit int) (domain.QuotaDecision, error) {
	ret := m.Called(ctx, clientID, dailyLimit)
	var r0 domain.QuotaDecision
	if ret.Get(0) != nil {
		r0 = ret.Get(0).(domain.QuotaDecision)
	}
	return r0, ret.Error(1)
}

var (
	_ domain.ImageSearcher    = (*MockImageSearcher)(nil)
	_ domain.KeywordSuggester = (*MockKeywordSuggester)(nil)
	_ domain.ChatCompleter    = (*MockChatCompleter)(nil)
	_ domain.QuotaStore       = (*MockQuotaStore)(nil)
)
