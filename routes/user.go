package routes

import (
	"encoding/json"
	"time"

	"github.com/Matchbook-Rentals/matchbook-web-frontend-sub019/models"
	"github.com/Matchbook-Rentals/matchbook-web-frontend-sub019/storage"
	"github.com/Matchbook-Rentals/matchbook-web-frontend-sub019/utils"
	"github.com/kataras/iris/v12"
	"github.com/kataras/iris/v12/middleware/jwt"
)

func GetUser(ctx iris.Context) {
	id := ctx.Params().Get("id")

	var user models.User
	if err := storage.DB.First(&user, id).Error; err != nil {
		utils.CreateNotFound(ctx)
		return
	}

	ctx.JSON(iris.Map{"user": &user})
}

// AlterPushToken registers or removes one device push token for the user.
func AlterPushToken(ctx iris.Context) {
	id := ctx.Params().Get("id")

	var input AlterPushTokenInput
	if err := ctx.ReadJSON(&input); err != nil {
		utils.HandleValidationErrors(err, ctx)
		return
	}

	var user models.User
	if err := storage.DB.First(&user, id).Error; err != nil {
		utils.CreateNotFound(ctx)
		return
	}

	var tokens []string
	if user.PushTokens != nil {
		json.Unmarshal(user.PushTokens, &tokens)
	}

	updated := make([]string, 0, len(tokens)+1)
	for _, token := range tokens {
		if token != input.Token {
			updated = append(updated, token)
		}
	}
	if input.Op == "add" {
		updated = append(updated, input.Token)
	}

	encoded, err := json.Marshal(updated)
	if err != nil {
		utils.CreateInternalServerError(ctx)
		return
	}
	if err := storage.DB.Model(&user).Update("push_tokens", encoded).Error; err != nil {
		utils.CreateInternalServerError(ctx)
		return
	}

	ctx.JSON(iris.Map{"success": true, "pushTokens": updated})
}

// AllowsNotifications toggles whether the user receives push notifications.
func AllowsNotifications(ctx iris.Context) {
	id := ctx.Params().Get("id")

	var input AllowsNotificationsInput
	if err := ctx.ReadJSON(&input); err != nil {
		utils.HandleValidationErrors(err, ctx)
		return
	}

	var user models.User
	if err := storage.DB.First(&user, id).Error; err != nil {
		utils.CreateNotFound(ctx)
		return
	}

	if err := storage.DB.Model(&user).Update("allows_notifications", input.AllowsNotifications).Error; err != nil {
		utils.CreateInternalServerError(ctx)
		return
	}

	ctx.StatusCode(iris.StatusNoContent)
}

// GetUserNotifications lists the requester's in-app notifications, newest
// first.
func GetUserNotifications(ctx iris.Context) {
	claims := jwt.Get(ctx).(*utils.AccessToken)

	var notifications []models.Notification
	err := storage.DB.Where("user_id = ?", claims.ID).
		Order("created_at desc").Limit(100).Find(&notifications).Error
	if err != nil {
		utils.CreateInternalServerError(ctx)
		return
	}

	ctx.JSON(iris.Map{"notifications": notifications})
}

func MarkNotificationRead(ctx iris.Context) {
	claims := jwt.Get(ctx).(*utils.AccessToken)
	id := ctx.Params().Get("id")

	now := time.Now()
	res := storage.DB.Model(&models.Notification{}).
		Where("id = ? AND user_id = ?", id, claims.ID).
		Updates(map[string]interface{}{"is_read": true, "read_at": now})
	if res.Error != nil {
		utils.CreateInternalServerError(ctx)
		return
	}
	if res.RowsAffected == 0 {
		utils.CreateNotFound(ctx)
		return
	}

	ctx.StatusCode(iris.StatusNoContent)
}

type AlterPushTokenInput struct {
	Token string `json:"token" validate:"required"`
	Op    string `json:"op" validate:"required,oneof=add remove"`
}

type AllowsNotificationsInput struct {
	AllowsNotifications *bool `json:"allowsNotifications" validate:"required"`
}
