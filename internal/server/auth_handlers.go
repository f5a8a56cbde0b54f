package server

import (
	"fmt"
	"strconv"
	"time"

	"tegridy/internal/models"
	"tegridy/internal/service"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Signup handles POST /api/auth/signup
func (s *Server) Signup(c *fiber.Ctx) error {
	var req struct {
		Username string `json:"username"`
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := c.BodyParser(&req); err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewInvalidInputError("Invalid request body"))
	}

	if req.Username == "" || req.Email == "" || req.Password == "" {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewInvalidInputError("Username, email, and password are required"))
	}

	user, err := s.userService.Register(c.Context(), service.RegisterInput{
		Username: req.Username,
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		return respondServiceError(c, err)
	}

	token, err := s.generateToken(user)
	if err != nil {
		return models.RespondWithError(c, fiber.StatusInternalServerError,
			models.NewInternalError(err))
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"token": token,
		"user":  user,
	})
}

// Login handles POST /api/auth/login
func (s *Server) Login(c *fiber.Ctx) error {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := c.BodyParser(&req); err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewInvalidInputError("Invalid request body"))
	}

	user, err := s.userService.Authenticate(c.Context(), req.Email, req.Password)
	if err != nil {
		return respondServiceError(c, err)
	}

	token, err := s.generateToken(user)
	if err != nil {
		return models.RespondWithError(c, fiber.StatusInternalServerError,
			models.NewInternalError(err))
	}

	return c.JSON(fiber.Map{
		"token": token,
		"user":  user,
	})
}

// Logout handles POST /api/auth/logout by blacklisting the token's JTI
// until its natural expiry.
func (s *Server) Logout(c *fiber.Ctx) error {
	if s.redis == nil {
		return c.JSON(fiber.Map{"message": "Logged out"})
	}

	authHeader := c.Get("Authorization")
	tokenString := ""
	if len(authHeader) > 7 && authHeader[:7] == "Bearer " {
		tokenString = authHeader[7:]
	}
	if tokenString == "" {
		return c.JSON(fiber.Map{"message": "Logged out"})
	}

	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (any, error) {
		return []byte(s.config.JWTSecret), nil
	})
	if err != nil || !token.Valid {
		return c.JSON(fiber.Map{"message": "Logged out"})
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return c.JSON(fiber.Map{"message": "Logged out"})
	}

	jti, _ := claims["jti"].(string)
	if jti != "" {
		ttl := 7 * 24 * time.Hour
		if exp, expOk := claims["exp"].(float64); expOk {
			if remaining := time.Until(time.Unix(int64(exp), 0)); remaining > 0 {
				ttl = remaining
			}
		}
		s.redis.Set(c.Context(), "blacklist:"+jti, "1", ttl)
	}

	return c.JSON(fiber.Map{"message": "Logged out"})
}

// GetMyProfile handles GET /api/users/me
func (s *Server) GetMyProfile(c *fiber.Ctx) error {
	user, err := s.userService.GetUserByID(c.Context(), currentUserID(c))
	if err != nil {
		return respondServiceError(c, err)
	}
	return c.JSON(user)
}

// generateToken creates a JWT token for the given user
func (s *Server) generateToken(user *models.User) (string, error) {
	if s.config.JWTSecret == "" {
		return "", fmt.Errorf("JWT secret not configured")
	}

	now := time.Now()
	claims := jwt.MapClaims{
		"sub":      strconv.FormatUint(uint64(user.ID), 10), // Subject (user ID as string)
		"username": user.Username,                           // Username (cached in token)
		"email":    user.Email,                              // Email (used to materialize user rows)
		"iss":      "tegridy-api",                           // Issuer
		"aud":      "tegridy-client",                        // Audience
		"exp":      now.Add(time.Hour * 24 * 7).Unix(),      // Expiration (7 days)
		"iat":      now.Unix(),                              // Issued at
		"nbf":      now.Unix(),                              // Not before
		"jti":      s.generateJTI(),                         // JWT ID (unique identifier)
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(s.config.JWTSecret))
}

// generateJTI creates a unique JWT ID to prevent replay attacks
func (s *Server) generateJTI() string {
	return fmt.Sprintf("%d-%s", time.Now().Unix(), uuid.New().String()[:8])
}
