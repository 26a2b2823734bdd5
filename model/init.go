package model

import "gochat/platform"

func InstallDB() {
	db := platform.DB
	if err := db.AutoMigrate(
		&User{},
		&UserMessage{},
		&AssistantResponse{}); err != nil {
		panic(err)
	}
}
