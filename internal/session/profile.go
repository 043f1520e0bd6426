package session

import (
	"context"
	"net/http"

	"github.com/prodonik/tierlist-client/internal/domain/session"
	"github.com/prodonik/tierlist-client/internal/domain/user"
	"github.com/prodonik/tierlist-client/internal/httpx"
	"github.com/prodonik/tierlist-client/pkg/errors"
	"github.com/prodonik/tierlist-client/pkg/logger"
)

// UpdateUserName changes the display name of the signed-in user.
func (s *Store) UpdateUserName(ctx context.Context, username string) error {
	if username == "" {
		return errors.Wrap(errors.ErrValidation, "username is required")
	}
	return s.updateProfile(ctx, &user.Patch{Username: &username})
}

// UpdateUserAge sets the user's age.
func (s *Store) UpdateUserAge(ctx context.Context, age int) error {
	if age <= 0 {
		return errors.Wrap(errors.ErrValidation, "age must be positive")
	}
	return s.updateProfile(ctx, &user.Patch{Age: &age})
}

// UpdateUserGender sets the user's gender.
func (s *Store) UpdateUserGender(ctx context.Context, gender string) error {
	if gender == "" {
		return errors.Wrap(errors.ErrValidation, "gender is required")
	}
	return s.updateProfile(ctx, &user.Patch{Gender: &gender})
}

// UpdateUserPreferences sets who the user is looking to be matched with.
func (s *Store) UpdateUserPreferences(ctx context.Context, lookingFor string) error {
	if lookingFor == "" {
		return errors.Wrap(errors.ErrValidation, "preference is required")
	}
	return s.updateProfile(ctx, &user.Patch{LookingFor: &lookingFor})
}

// UpdateUserPicture sets the profile picture URL.
func (s *Store) UpdateUserPicture(ctx context.Context, pictureURL string) error {
	if pictureURL == "" {
		return errors.Wrap(errors.ErrValidation, "picture url is required")
	}
	return s.updateProfile(ctx, &user.Patch{PictureURL: &pictureURL})
}

// UpdateOnboardingStatus marks the first-run onboarding flow completed
// (or reopens it).
func (s *Store) UpdateOnboardingStatus(ctx context.Context, completed bool) error {
	if err := s.updateProfile(ctx, &user.Patch{HasCompletedOnboarding: &completed}); err != nil {
		return err
	}
	s.SetIsNewUser(!completed)
	return nil
}

// updateProfile sends a partial profile update and, on success, merges
// the patch into the session's user and re-persists the credential
// record so a restart sees the same profile.
func (s *Store) updateProfile(ctx context.Context, patch *user.Patch) error {
	snap := s.Snapshot()
	if !snap.IsAuthenticated || snap.User == nil {
		return errors.ErrNotAuthenticated
	}

	s.beginOp()

	err := s.http.Do(ctx, httpx.Request{
		Method:        http.MethodPost,
		URL:           s.cfg.Auth.BaseURL + s.cfg.Auth.UpdateProfilePath,
		Body:          patch,
		Authenticated: true,
	}, nil)
	if err != nil {
		s.log.Warn("profile update failed", logger.Error(err))
		next := snap
		s.endOp(next, err)
		return err
	}

	updated := snap.User.Clone()
	updated.Apply(patch)
	s.persistCredentials(ctx, snap.Token, updated)

	s.endOp(session.Session{
		Token:           snap.Token,
		User:            updated,
		IsAuthenticated: true,
		IsNewUser:       snap.IsNewUser,
	}, nil)
	return nil
}

// DeleteUserAccount deletes the account server-side, then clears all
// local state exactly like a logout.
func (s *Store) DeleteUserAccount(ctx context.Context) error {
	snap := s.Snapshot()
	if !snap.IsAuthenticated {
		return errors.ErrNotAuthenticated
	}

	s.beginOp()

	err := s.http.Do(ctx, httpx.Request{
		Method:        http.MethodDelete,
		URL:           s.cfg.Auth.BaseURL + s.cfg.Auth.DeleteAccountPath,
		Authenticated: true,
	}, nil)
	if err != nil {
		s.log.Warn("account deletion failed", logger.Error(err))
		s.endOp(snap, err)
		return err
	}

	s.log.Info("account deleted", logger.UserID(snap.User.ID))
	s.clearCredentials(ctx)
	s.endOp(session.Empty(), nil)
	return nil
}

// DailyTierlist is the daily prompt assignment for the signed-in user.
type DailyTierlist struct {
	Available bool   `json:"available"`
	ID        string `json:"id,omitempty"`
	Title     string `json:"title,omitempty"`
	Category  string `json:"category,omitempty"`
	Date      string `json:"date,omitempty"`
}

// FetchDailyTierlist fetches today's tierlist assignment. Failures are
// soft: the caller gets an unavailable result rather than an error, so
// the home screen renders without the daily prompt instead of failing.
func (s *Store) FetchDailyTierlist(ctx context.Context) DailyTierlist {
	snap := s.Snapshot()
	if !snap.IsAuthenticated {
		return DailyTierlist{}
	}

	var out DailyTierlist
	err := s.http.Do(ctx, httpx.Request{
		Method:        http.MethodGet,
		URL:           s.cfg.Auth.BaseURL + s.cfg.Auth.DailyTierlistPath,
		Authenticated: true,
	}, &out)
	if err != nil {
		s.log.Warn("daily tierlist fetch failed", logger.Error(err))
		return DailyTierlist{}
	}
	return out
}
