package list_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/applyflow/applyflow/internal/app/list"
	"github.com/applyflow/applyflow/internal/log"
	"github.com/applyflow/applyflow/internal/model"
	"github.com/applyflow/applyflow/internal/storage/storagemock"
)

func TestNewService(t *testing.T) {
	tests := map[string]struct {
		config list.ServiceConfig
		expErr bool
	}{
		"valid config should create service": {
			config: list.ServiceConfig{
				Repository: &storagemock.MockRepository{},
				Logger:     log.Noop,
			},
			expErr: false,
		},
		"missing repository should fail": {
			config: list.ServiceConfig{
				Logger: log.Noop,
			},
			expErr: true,
		},
		"nil logger should default to noop": {
			config: list.ServiceConfig{
				Repository: &storagemock.MockRepository{},
			},
			expErr: false,
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			require := require.New(t)

			svc, err := list.NewService(test.config)

			if test.expErr {
				require.Error(err)
				require.Nil(svc)
			} else {
				require.NoError(err)
				require.NotNil(svc)
			}
		})
	}
}

func TestService_Run(t *testing.T) {
	createdAt := time.Date(2026, 1, 30, 10, 0, 0, 0, time.UTC)

	applied := model.ApplicationStatusApplied
	blocked := model.RunStateBlocked

	apps := []model.Application{
		{ID: "id1", UserID: "user-1", Status: model.ApplicationStatusApplied, RunState: model.RunStateCompleted, CreatedAt: createdAt},
		{ID: "id2", UserID: "user-1", Status: model.ApplicationStatusPending, RunState: model.RunStateBlocked, CreatedAt: createdAt},
		{ID: "id3", UserID: "user-1", Status: model.ApplicationStatusPending, RunState: model.RunStateNotStarted, CreatedAt: createdAt},
	}

	tests := map[string]struct {
		mock      func(m *storagemock.MockRepository)
		req       list.Request
		expResult []model.Application
		expErr    bool
	}{
		"list all applications without filter": {
			mock: func(m *storagemock.MockRepository) {
				m.On("ListApplications", mock.Anything, "user-1").Once().Return(apps, nil)
			},
			req:       list.Request{UserID: "user-1"},
			expResult: apps,
		},
		"filter by applied status": {
			mock: func(m *storagemock.MockRepository) {
				m.On("ListApplications", mock.Anything, "user-1").Once().Return(apps, nil)
			},
			req:       list.Request{UserID: "user-1", StatusFilter: &applied},
			expResult: []model.Application{apps[0]},
		},
		"filter by blocked run state": {
			mock: func(m *storagemock.MockRepository) {
				m.On("ListApplications", mock.Anything, "user-1").Once().Return(apps, nil)
			},
			req:       list.Request{UserID: "user-1", RunStateFilter: &blocked},
			expResult: []model.Application{apps[1]},
		},
		"filter with no matches returns empty list": {
			mock: func(m *storagemock.MockRepository) {
				m.On("ListApplications", mock.Anything, "user-1").Once().Return(apps[2:], nil)
			},
			req:       list.Request{UserID: "user-1", StatusFilter: &applied},
			expResult: []model.Application{},
		},
		"missing user should fail": {
			mock:   func(m *storagemock.MockRepository) {},
			req:    list.Request{},
			expErr: true,
		},
		"repository error should propagate": {
			mock: func(m *storagemock.MockRepository) {
				m.On("ListApplications", mock.Anything, "user-1").Once().Return(nil, fmt.Errorf("database error"))
			},
			req:    list.Request{UserID: "user-1"},
			expErr: true,
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			assert := assert.New(t)
			require := require.New(t)

			// Setup
			m := &storagemock.MockRepository{}
			test.mock(m)

			svc, err := list.NewService(list.ServiceConfig{
				Repository: m,
				Logger:     log.Noop,
			})
			require.NoError(err)

			// Execute
			result, err := svc.Run(context.Background(), test.req)

			// Verify
			if test.expErr {
				assert.Error(err)
			} else {
				assert.NoError(err)
				assert.Equal(test.expResult, result)
			}

			m.AssertExpectations(t)
		})
	}
}
