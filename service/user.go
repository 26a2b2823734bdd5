package service

import (
	"errors"
	"log"

	"gochat/model"

	"golang.org/x/crypto/bcrypt"
)

type UserService struct {
}

type User struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (service *UserService) Register(user *User) error {

	// uniqueness check
	if model.UserExists(user.Username, user.Email) {
		return errors.New("user already exists")
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(user.Password), bcrypt.DefaultCost)
	if err != nil {
		return errors.New("internal server error")
	}

	newUser := &model.User{
		Username: user.Username,
		Email:    user.Email,
		Password: string(hashedPassword),
	}
	if err := model.CreateUser(newUser); err != nil {
		return errors.New("internal server error")
	}
	return nil
}

// Authenticate verifies the username/password pair and returns the stored
// user record.
func (service *UserService) Authenticate(username, password string) (*model.User, error) {
	registered, err := model.GetUserByUsername(username)
	if err != nil {
		return nil, errors.New("failed to get user")
	}

	if err := bcrypt.CompareHashAndPassword([]byte(registered.Password), []byte(password)); err != nil {
		return nil, errors.New("invalid credentials")
	}
	return registered, nil
}

func (service *UserService) Login(user *User) (string, *model.User, error) {
	registered, err := service.Authenticate(user.Username, user.Password)
	if err != nil {
		return "", nil, err
	}

	ts := &TokenService{}
	token, err := ts.CreateToken(registered.ID, registered.Email)
	if err != nil {
		log.Printf("Error generating token: %v", err)
		return "", nil, errors.New("failed to generate token")
	}

	return token.AccessToken, registered, nil
}
