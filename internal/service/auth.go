package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"unicode"

	"github.com/sakif/xswarm-forum/internal/apperror"
	"github.com/sakif/xswarm-forum/internal/auth"
	"github.com/sakif/xswarm-forum/internal/model"
	"github.com/sakif/xswarm-forum/internal/repository"
)

// AuthService handles signup, login and session lookup.
//
//	AuthHandler (HTTP) → AuthService → UserRepository (DB)
//	                                 ↘ TokenService (JWT), PasswordService (bcrypt)
//
// TERMINATED ACCOUNTS:
// A terminated user's row is kept forever. Signup with that username fails
// with ErrTerminated (not ErrConflict) so the client can show a ban notice,
// and login fails the same way once the password checks out.
type AuthService struct {
	users         repository.UserRepository
	tokens        *auth.TokenService
	passwords     *auth.PasswordService
	moderatorName string
	logger        *slog.Logger
}

// NewAuthService wires the service. Signing up as moderatorName grants the
// moderator role; an empty moderatorName disables that.
func NewAuthService(
	users repository.UserRepository,
	tokens *auth.TokenService,
	passwords *auth.PasswordService,
	moderatorName string,
	logger *slog.Logger,
) *AuthService {
	return &AuthService{
		users:         users,
		tokens:        tokens,
		passwords:     passwords,
		moderatorName: moderatorName,
		logger:        logger,
	}
}

// AuthResult bundles the user and the issued session token so the handler
// can set the cookie and respond in one step.
type AuthResult struct {
	User  *model.User
	Token string
}

// Signup creates a password account and logs it in.
//
// Errors:
//   - ErrValidation for a malformed username or password
//   - ErrTerminated if the username belongs to a terminated account
//   - ErrConflict ("username taken") if it belongs to anyone else
func (s *AuthService) Signup(ctx context.Context, username, password, pfp string) (*AuthResult, error) {
	username = strings.TrimSpace(username)
	pfp = strings.TrimSpace(pfp)

	if err := validateUsername(username); err != nil {
		return nil, err
	}
	if len(password) < MinPasswordLength {
		return nil, apperror.ValidationFailed("password", fmt.Sprintf("password must be at least %d characters", MinPasswordLength))
	}
	if len(password) > auth.MaxPasswordBytes {
		return nil, apperror.ValidationFailed("password", fmt.Sprintf("password must be %d bytes or fewer", auth.MaxPasswordBytes))
	}

	existing, err := s.users.GetUserByUsername(ctx, username)
	switch {
	case err == nil && existing.Terminated:
		return nil, apperror.Terminated(username)
	case err == nil:
		return nil, apperror.Conflict("username", "username taken")
	case !errors.Is(err, apperror.ErrNotFound):
		return nil, fmt.Errorf("service/auth: checking username %q: %w", username, err)
	}

	hash, err := s.passwords.Hash(password)
	if err != nil {
		return nil, fmt.Errorf("service/auth: %w", err)
	}

	user := &model.User{
		Username:     username,
		PasswordHash: hash,
		Pfp:          pfp,
		IsModerator:  s.moderatorName != "" && username == s.moderatorName,
	}
	if err := s.users.CreateUser(ctx, user); err != nil {
		return nil, fmt.Errorf("service/auth: creating user %q: %w", username, err)
	}

	s.logger.Info("user signed up",
		slog.String("userID", user.ID),
		slog.String("username", user.Username),
		slog.Bool("moderator", user.IsModerator),
	)

	return s.issue(user)
}

// Login checks a username and password.
//
// Unknown usernames and wrong passwords both return the same
// ErrUnauthenticated so the response does not reveal which accounts exist.
func (s *AuthService) Login(ctx context.Context, username, password string) (*AuthResult, error) {
	username = strings.TrimSpace(username)
	invalid := apperror.Unauthenticated("invalid username or password")

	user, err := s.users.GetUserByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return nil, invalid
		}
		return nil, fmt.Errorf("service/auth: loading user %q: %w", username, err)
	}

	if err := s.passwords.Verify(user.PasswordHash, password); err != nil {
		if errors.Is(err, auth.ErrInvalidPassword) {
			return nil, invalid
		}
		return nil, fmt.Errorf("service/auth: %w", err)
	}

	if user.Terminated {
		return nil, apperror.Terminated(user.Username)
	}

	s.logger.Info("user logged in", slog.String("userID", user.ID))
	return s.issue(user)
}

// Me returns the user behind a session, or nil for an anonymous caller.
// A session whose user no longer exists is treated as anonymous too.
func (s *AuthService) Me(ctx context.Context, userID string) (*model.User, error) {
	if userID == "" {
		return nil, nil
	}

	user, err := s.users.GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("service/auth: fetching user %s: %w", userID, err)
	}
	return user, nil
}

// LoginOrRegisterGitHub handles the OAuth callback.
//
// A returning GitHub identity logs into its linked account. A new one gets an
// account named after its GitHub login; if that name is taken, the GitHub ID
// is appended ("octocat-42"). Terminated accounts stay locked out.
func (s *AuthService) LoginOrRegisterGitHub(ctx context.Context, ghUser *auth.GitHubUser) (*AuthResult, error) {
	if ghUser == nil {
		return nil, fmt.Errorf("service/auth: GitHub user must not be nil")
	}

	res, err := s.loginLinkedGitHub(ctx, ghUser.ID)
	if !errors.Is(err, apperror.ErrNotFound) {
		return res, err
	}

	githubID := ghUser.ID
	candidates := []string{ghUser.Login, fmt.Sprintf("%s-%d", ghUser.Login, ghUser.ID)}
	for _, name := range candidates {
		user := &model.User{
			Username:    name,
			Pfp:         ghUser.AvatarURL,
			GitHubID:    &githubID,
			IsModerator: s.moderatorName != "" && name == s.moderatorName,
		}
		err = s.users.CreateUser(ctx, user)
		if err == nil {
			s.logger.Info("user registered via GitHub",
				slog.String("userID", user.ID),
				slog.String("username", user.Username),
			)
			return s.issue(user)
		}
		var appErr *apperror.AppError
		if errors.As(err, &appErr) && errors.Is(err, apperror.ErrConflict) && appErr.Field == "github_id" {
			// Another callback for the same identity registered it first.
			return s.loginLinkedGitHub(ctx, ghUser.ID)
		}
		if !errors.Is(err, apperror.ErrConflict) {
			return nil, fmt.Errorf("service/auth: creating github user %q: %w", name, err)
		}
	}

	return nil, apperror.Conflict("username", "username taken")
}

// loginLinkedGitHub logs into the account already linked to githubID.
// It returns apperror.ErrNotFound when no account is linked yet.
func (s *AuthService) loginLinkedGitHub(ctx context.Context, githubID int64) (*AuthResult, error) {
	user, err := s.users.GetUserByGitHubID(ctx, githubID)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("service/auth: looking up github user %d: %w", githubID, err)
	}
	if user.Terminated {
		return nil, apperror.Terminated(user.Username)
	}
	s.logger.Info("user authenticated via GitHub", slog.String("userID", user.ID))
	return s.issue(user)
}

// EnsureModerator promotes an existing account named moderatorName. It runs
// at startup; if the account does not exist yet, signup grants the role later.
func (s *AuthService) EnsureModerator(ctx context.Context) error {
	if s.moderatorName == "" {
		return nil
	}
	err := s.users.SetModerator(ctx, s.moderatorName, true)
	if err != nil && !errors.Is(err, apperror.ErrNotFound) {
		return fmt.Errorf("service/auth: promoting %q: %w", s.moderatorName, err)
	}
	return nil
}

func (s *AuthService) issue(user *model.User) (*AuthResult, error) {
	token, err := s.tokens.Generate(user.ID)
	if err != nil {
		return nil, fmt.Errorf("service/auth: generating token for user %s: %w", user.ID, err)
	}
	return &AuthResult{User: user, Token: token}, nil
}

// validateUsername allows letters, digits, '_' and '-'. The tombstone name
// "Account Deleted" contains a space, so no real account can ever collide with it.
func validateUsername(username string) error {
	if username == "" {
		return apperror.ValidationFailed("username", "username is required")
	}
	if len(username) < MinUsernameLength || len(username) > MaxUsernameLength {
		return apperror.ValidationFailed("username",
			fmt.Sprintf("username must be %d-%d characters", MinUsernameLength, MaxUsernameLength))
	}
	for _, r := range username {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_' && r != '-' {
			return apperror.ValidationFailed("username", "username may only contain letters, digits, '_' and '-'")
		}
	}
	return nil
}
