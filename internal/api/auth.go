package api

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/mail"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"medscan-backend/internal/database"
	"medscan-backend/pkg/api"
)

type contextKey string

const userContextKey contextKey = "user"

type authClaims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

func (s *BackendService) Register(r *http.Request) (any, error) {
	req, err := ParseRequest[api.RegisterRequest](r)
	if err != nil {
		return nil, err
	}

	if _, err := mail.ParseAddress(req.Email); err != nil {
		return nil, CodedErrorf(http.StatusBadRequest, "invalid email address")
	}
	if len(req.Password) < 8 {
		return nil, CodedErrorf(http.StatusBadRequest, "password must be at least 8 characters")
	}
	if req.Role != database.RolePatient && req.Role != database.RoleRadiologist {
		return nil, CodedErrorf(http.StatusBadRequest, "role must be %q or %q", database.RolePatient, database.RoleRadiologist)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		slog.Error("error hashing password", "error", err)
		return nil, CodedErrorf(http.StatusInternalServerError, "failed to register user")
	}

	user := database.User{
		Id:           uuid.New(),
		Email:        strings.ToLower(req.Email),
		PasswordHash: string(hash),
		Role:         req.Role,
		Status:       "active",
		FirstName:    req.FirstName,
		LastName:     req.LastName,
		Phone:        req.Phone,
	}

	ctx := r.Context()
	err = s.db.WithContext(ctx).Transaction(func(txn *gorm.DB) error {
		if err := txn.Create(&user).Error; err != nil {
			return err
		}

		switch req.Role {
		case database.RolePatient:
			patientNumber, err := nextPatientNumber(txn)
			if err != nil {
				return err
			}
			return txn.Create(&database.PatientProfile{
				Id:            uuid.New(),
				UserId:        user.Id,
				PatientNumber: patientNumber,
				AgeYears:      req.AgeYears,
				WeightKg:      req.WeightKg,
				HeightCm:      req.HeightCm,
				Gender:        req.Gender,
			}).Error
		case database.RoleRadiologist:
			return txn.Create(&database.RadiologistProfile{
				Id:            uuid.New(),
				UserId:        user.Id,
				LicenseNumber: req.LicenseNumber,
				Specialty:     req.Specialty,
			}).Error
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) || strings.Contains(err.Error(), "UNIQUE") || strings.Contains(err.Error(), "duplicate") {
			return nil, CodedErrorf(http.StatusConflict, "an account with this email already exists")
		}
		slog.Error("error creating user", "error", err)
		return nil, CodedErrorf(http.StatusInternalServerError, "failed to register user")
	}

	slog.Info("registered user", "user_id", user.Id, "role", user.Role)
	return api.RegisterResponse{UserId: user.Id}, nil
}

// nextPatientNumber allocates the next PT-NNNN identifier. The count is taken
// inside the registration transaction so concurrent registrations on postgres
// do not hand out the same number.
func nextPatientNumber(txn *gorm.DB) (string, error) {
	var count int64
	if err := txn.Model(&database.PatientProfile{}).Count(&count).Error; err != nil {
		return "", fmt.Errorf("counting patients: %w", err)
	}
	return fmt.Sprintf("PT-%04d", count+1), nil
}

func (s *BackendService) Login(r *http.Request) (any, error) {
	req, err := ParseRequest[api.LoginRequest](r)
	if err != nil {
		return nil, err
	}

	ctx := r.Context()

	var user database.User
	if err := s.db.WithContext(ctx).First(&user, "email = ?", strings.ToLower(req.Email)).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, CodedErrorf(http.StatusUnauthorized, "invalid email or password")
		}
		slog.Error("error loading user", "error", err)
		return nil, CodedErrorf(http.StatusInternalServerError, "login failed")
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		return nil, CodedErrorf(http.StatusUnauthorized, "invalid email or password")
	}
	if user.Status != "active" {
		return nil, CodedErrorf(http.StatusForbidden, "account is not active")
	}

	token, err := s.issueToken(&user)
	if err != nil {
		slog.Error("error issuing token", "error", err)
		return nil, CodedErrorf(http.StatusInternalServerError, "login failed")
	}

	if err := s.db.WithContext(ctx).Model(&database.User{Id: user.Id}).
		Update("last_login", sql.NullTime{Time: time.Now().UTC(), Valid: true}).Error; err != nil {
		slog.Warn("failed to record login time", "user_id", user.Id, "error", err)
	}

	return api.LoginResponse{
		Token:     token,
		UserId:    user.Id,
		Role:      user.Role,
		FirstName: user.FirstName,
		LastName:  user.LastName,
	}, nil
}

func (s *BackendService) issueToken(user *database.User) (string, error) {
	now := time.Now()
	claims := authClaims{
		Role: user.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.Id.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.tokenTTL)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.jwtSecret)
}

func (s *BackendService) parseToken(tokenString string) (*database.User, error) {
	var claims authClaims
	token, err := jwt.ParseWithClaims(tokenString, &claims, func(t *jwt.Token) (any, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return s.jwtSecret, nil
	})
	if err != nil || !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}

	userId, err := uuid.Parse(claims.Subject)
	if err != nil {
		return nil, fmt.Errorf("invalid token subject")
	}

	var user database.User
	if err := s.db.First(&user, "id = ?", userId).Error; err != nil {
		return nil, fmt.Errorf("unknown user")
	}
	return &user, nil
}

// requireRole authenticates the bearer token and checks the user holds one of
// the given roles.
func (s *BackendService) requireRole(roles ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			tokenString, ok := strings.CutPrefix(header, "Bearer ")
			if !ok || tokenString == "" {
				http.Error(w, "missing bearer token", http.StatusUnauthorized)
				return
			}

			user, err := s.parseToken(tokenString)
			if err != nil {
				http.Error(w, "invalid or expired token", http.StatusUnauthorized)
				return
			}

			allowed := false
			for _, role := range roles {
				if user.Role == role {
					allowed = true
					break
				}
			}
			if !allowed {
				http.Error(w, "insufficient permissions", http.StatusForbidden)
				return
			}

			ctx := context.WithValue(r.Context(), userContextKey, user)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func requestUser(r *http.Request) (*database.User, error) {
	user, ok := r.Context().Value(userContextKey).(*database.User)
	if !ok {
		return nil, CodedErrorf(http.StatusUnauthorized, "not authenticated")
	}
	return user, nil
}
