package service

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	usermodels "nameaffirm/internal/users/models"
	userstore "nameaffirm/internal/users/store"
	"nameaffirm/internal/verifiedname/models"
	"nameaffirm/internal/verifiedname/store"
	"nameaffirm/pkg/requestcontext"
)

func TestCreateGetRoundTrip(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	name := gen.AlphaString().SuchThat(func(s string) bool { return strings.TrimSpace(s) != "" })

	properties.Property("created record is the most recent and verified iff flagged", prop.ForAll(
		func(verifiedName, profileName string, isVerified bool) bool {
			records := store.NewInMemory()
			users := userstore.NewInMemory()
			ctx := requestcontext.WithTime(context.Background(), fixedNow)
			_ = users.Save(ctx, &usermodels.User{ID: 1, Username: "jane"})
			svc, err := New(records, records, store.NewShardedTx(records, time.Second), users)
			if err != nil {
				return false
			}

			created, err := svc.Create(ctx, CreateRequest{
				UserID: 1, VerifiedName: verifiedName, ProfileName: profileName, IsVerified: isVerified,
			})
			if err != nil {
				return false
			}
			got, err := svc.GetMostRecent(ctx, 1, false)
			if err != nil || got.ID != created.ID || got.VerifiedName != verifiedName {
				return false
			}
			if (got.Status == models.StatusApproved) != isVerified {
				return false
			}
			_, err = svc.GetMostRecent(ctx, 1, true)
			return (err == nil) == isVerified
		},
		name,
		name,
		gen.Bool(),
	))

	properties.TestingRun(t)
}
