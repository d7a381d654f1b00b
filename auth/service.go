// Package auth registers users, checks their credentials and issues the
// bearer tokens the HTTP layer authenticates with.
package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"courier/apperrors"
	"courier/models"
)

// UserStore is the identity storage the service needs.
type UserStore interface {
	CreateUser(ctx context.Context, username, email, passwordHash string) (*models.User, error)
	GetUserByID(ctx context.Context, id int64) (*models.User, error)
	GetUserByUsername(ctx context.Context, username string) (*models.User, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	SearchUsers(ctx context.Context, query string, excludeID int64, limit int) ([]models.User, error)
	SetUserActive(ctx context.Context, id int64, active bool) error
}

// searchLimit caps user search results.
const searchLimit = 20

// Welcomer is told about every new account.
type Welcomer interface {
	UserRegistered(user models.User)
}

// RegisterInput carries a registration request.
type RegisterInput struct {
	Username string `json:"username" validate:"required,min=3,max=50"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8,password_strength"`
}

type Service struct {
	users    UserStore
	tokens   *Tokens
	welcomer Welcomer
	validate *validator.Validate
	log      zerolog.Logger
}

// NewService creates the auth service. welcomer may be nil.
func NewService(users UserStore, tokens *Tokens, welcomer Welcomer, log zerolog.Logger) *Service {
	validate := validator.New(validator.WithRequiredStructEnabled())
	// Registration cannot fail at runtime: the tag name is fixed.
	_ = validate.RegisterValidation("password_strength", passwordStrength)

	return &Service{
		users:    users,
		tokens:   tokens,
		welcomer: welcomer,
		validate: validate,
		log:      log.With().Str("component", "auth").Logger(),
	}
}

// Register creates an account and sends the welcome email.
func (s *Service) Register(ctx context.Context, in RegisterInput) (*models.User, error) {
	in.Username = strings.TrimSpace(in.Username)
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))

	if err := s.validate.Struct(in); err != nil {
		return nil, validationError(err)
	}

	hash, err := HashPassword(in.Password)
	if err != nil {
		return nil, apperrors.Internal("failed to hash password", err)
	}
	user, err := s.users.CreateUser(ctx, in.Username, in.Email, hash)
	if err != nil {
		return nil, err
	}

	s.log.Info().Int64("user_id", user.ID).Str("username", user.Username).Msg("user registered")
	if s.welcomer != nil {
		s.welcomer.UserRegistered(*user)
	}
	return user, nil
}

// Login checks credentials and issues an access token. identifier may be a
// username or an email address.
func (s *Service) Login(ctx context.Context, identifier, password string) (*Token, error) {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" || password == "" {
		return nil, apperrors.ErrInvalidCredentials
	}

	user, err := s.users.GetUserByUsername(ctx, identifier)
	if errors.Is(err, apperrors.ErrUserNotFound) {
		user, err = s.users.GetUserByEmail(ctx, strings.ToLower(identifier))
	}
	if errors.Is(err, apperrors.ErrUserNotFound) {
		return nil, apperrors.ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}

	ok, err := CheckPassword(user.PasswordHash, password)
	if err != nil {
		return nil, apperrors.Internal("failed to verify password", err)
	}
	if !ok {
		return nil, apperrors.ErrInvalidCredentials
	}
	if !user.IsActive {
		return nil, apperrors.ErrInactiveUser
	}
	return s.tokens.Issue(user.ID)
}

// Authenticate resolves a bearer token to an active user.
func (s *Service) Authenticate(ctx context.Context, token string) (*models.User, error) {
	userID, err := s.tokens.Parse(token)
	if err != nil {
		return nil, err
	}
	user, err := s.users.GetUserByID(ctx, userID)
	if errors.Is(err, apperrors.ErrUserNotFound) {
		return nil, apperrors.ErrInvalidToken
	}
	if err != nil {
		return nil, err
	}
	if !user.IsActive {
		return nil, apperrors.ErrInactiveUser
	}
	return user, nil
}

// Deactivate disables the account. Its tokens stop authenticating and it can
// no longer log in; its messages and conversations are kept.
func (s *Service) Deactivate(ctx context.Context, userID int64) error {
	if err := s.users.SetUserActive(ctx, userID, false); err != nil {
		return err
	}
	s.log.Info().Int64("user_id", userID).Msg("user deactivated")
	return nil
}

// SearchUsers looks up active users by username so a client can find
// someone to message. The requester is never in the results.
func (s *Service) SearchUsers(ctx context.Context, requesterID int64, query string) ([]models.UserProfile, error) {
	profiles := []models.UserProfile{}
	query = strings.TrimSpace(query)
	if query == "" {
		return profiles, nil
	}
	users, err := s.users.SearchUsers(ctx, query, requesterID, searchLimit)
	if err != nil {
		return nil, err
	}
	for i := range users {
		profiles = append(profiles, users[i].ToProfile())
	}
	return profiles, nil
}

func passwordStrength(fl validator.FieldLevel) bool {
	var digit, upper bool
	for _, r := range fl.Field().String() {
		digit = digit || unicode.IsDigit(r)
		upper = upper || unicode.IsUpper(r)
	}
	return digit && upper
}

func validationError(err error) error {
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return apperrors.InvalidArg(err.Error())
	}

	fe := fieldErrs[0]
	field := strings.ToLower(fe.Field())
	switch fe.Tag() {
	case "required":
		return apperrors.InvalidArg(field + " is required")
	case "min":
		return apperrors.InvalidArg(fmt.Sprintf("%s must be at least %s characters", field, fe.Param()))
	case "max":
		return apperrors.InvalidArg(fmt.Sprintf("%s must be at most %s characters", field, fe.Param()))
	case "email":
		return apperrors.InvalidArg("invalid email address")
	case "password_strength":
		return apperrors.InvalidArg("password must contain at least one digit and one uppercase letter")
	default:
		return apperrors.InvalidArg("invalid " + field)
	}
}
