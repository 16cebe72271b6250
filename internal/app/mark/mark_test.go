package mark_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/applyflow/applyflow/internal/app/mark"
	"github.com/applyflow/applyflow/internal/model"
	"github.com/applyflow/applyflow/internal/storage/storagemock"
)

func TestServiceRun(t *testing.T) {
	tests := map[string]struct {
		current   model.ApplicationStatus
		to        model.ApplicationStatus
		expUpdate bool
		expErr    error
	}{
		"Applied applications can move to interview": {
			current:   model.ApplicationStatusApplied,
			to:        model.ApplicationStatusInterview,
			expUpdate: true,
		},
		"Applied applications can be rejected": {
			current:   model.ApplicationStatusApplied,
			to:        model.ApplicationStatusRejected,
			expUpdate: true,
		},
		"Interviews can end with an offer": {
			current:   model.ApplicationStatusInterview,
			to:        model.ApplicationStatusOffer,
			expUpdate: true,
		},
		"Marking the same status is a no-op": {
			current: model.ApplicationStatusInterview,
			to:      model.ApplicationStatusInterview,
		},
		"Pending applications can't be marked as applied by users": {
			current: model.ApplicationStatusPending,
			to:      model.ApplicationStatusApplied,
			expErr:  model.ErrNotValid,
		},
		"Offers are final": {
			current: model.ApplicationStatusOffer,
			to:      model.ApplicationStatusInterview,
			expErr:  model.ErrNotValid,
		},
		"Unknown statuses are rejected": {
			current: model.ApplicationStatusApplied,
			to:      model.ApplicationStatus("ghosted"),
			expErr:  model.ErrNotValid,
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			repo := storagemock.NewMockRepository(t)
			repo.On("GetApplication", mock.Anything, "app-1").Once().Return(&model.Application{ID: "app-1", Status: tt.current}, nil)
			if tt.expUpdate {
				repo.On("UpdateApplication", mock.Anything, mock.MatchedBy(func(a model.Application) bool {
					return a.Status == tt.to
				})).Once().Return(nil)
			}

			svc, err := mark.NewService(mark.ServiceConfig{Repository: repo})
			require.NoError(t, err)

			app, err := svc.Run(context.Background(), mark.Request{ApplicationID: "app-1", Status: tt.to})
			if tt.expErr != nil {
				assert.ErrorIs(t, err, tt.expErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.to, app.Status)
		})
	}
}
