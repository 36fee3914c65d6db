package tool

import (
	"context"
	"strings"

	domaintool "github.com/ghostagent/ghost/internal/domain/tool"
	"go.uber.org/zap"
)

// ProfileAdmin is what the profile tools need from the profile store.
type ProfileAdmin interface {
	Update(category, key, value string) (string, error)
	Delete(category, key string) (string, error)
}

// UpdateProfileTool persists a durable fact about the user.
type UpdateProfileTool struct {
	profile ProfileAdmin
	logger  *zap.Logger
}

func NewUpdateProfileTool(profile ProfileAdmin, logger *zap.Logger) *UpdateProfileTool {
	return &UpdateProfileTool{
		profile: profile,
		logger:  logger.With(zap.String("tool", "update_profile")),
	}
}

func (t *UpdateProfileTool) Name() string          { return "update_profile" }
func (t *UpdateProfileTool) Kind() domaintool.Kind { return domaintool.KindMemory }
func (t *UpdateProfileTool) Description() string {
	return "Save a permanent fact about the user to their profile (name, preferences, relationships, assets, projects)."
}

func (t *UpdateProfileTool) Schema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"category": map[string]interface{}{
				"type":        "string",
				"description": "Profile category, e.g. 'root', 'preferences', 'projects', 'assets', 'relationships', 'interests'.",
			},
			"key": map[string]interface{}{
				"type":        "string",
				"description": "The fact's key, e.g. 'name', 'timezone', 'car'.",
			},
			"value": map[string]interface{}{
				"type":        "string",
				"description": "The fact's value.",
			},
		},
		"required": []string{"category", "key", "value"},
	}
}

func (t *UpdateProfileTool) Execute(ctx context.Context, args map[string]interface{}) (*domaintool.Result, error) {
	category := strings.TrimSpace(strArg(args, "category"))
	key := strings.TrimSpace(strArg(args, "key"))
	value := strings.TrimSpace(strArg(args, "value"))
	if category == "" || key == "" || value == "" {
		return fail("Error: 'category', 'key' and 'value' are all required")
	}

	line, err := t.profile.Update(category, key, value)
	if err != nil {
		return fail("Error: profile update failed: %v", err)
	}
	t.logger.Info("Profile updated", zap.String("category", category), zap.String("key", key))
	return ok(line)
}

// DeleteProfileKeyTool removes a profile fact.
type DeleteProfileKeyTool struct {
	profile ProfileAdmin
	logger  *zap.Logger
}

func NewDeleteProfileKeyTool(profile ProfileAdmin, logger *zap.Logger) *DeleteProfileKeyTool {
	return &DeleteProfileKeyTool{
		profile: profile,
		logger:  logger.With(zap.String("tool", "delete_profile_key")),
	}
}

func (t *DeleteProfileKeyTool) Name() string          { return "delete_profile_key" }
func (t *DeleteProfileKeyTool) Kind() domaintool.Kind { return domaintool.KindMemory }
func (t *DeleteProfileKeyTool) Description() string {
	return "Remove an outdated or wrong fact from the user's profile."
}

func (t *DeleteProfileKeyTool) Schema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"category": map[string]interface{}{
				"type":        "string",
				"description": "Profile category holding the key.",
			},
			"key": map[string]interface{}{
				"type":        "string",
				"description": "The key to remove.",
			},
		},
		"required": []string{"category", "key"},
	}
}

func (t *DeleteProfileKeyTool) Execute(ctx context.Context, args map[string]interface{}) (*domaintool.Result, error) {
	category := strings.TrimSpace(strArg(args, "category"))
	key := strings.TrimSpace(strArg(args, "key"))
	if category == "" || key == "" {
		return fail("Error: 'category' and 'key' are both required")
	}

	line, err := t.profile.Delete(category, key)
	if err != nil {
		return fail("Error: profile delete failed: %v", err)
	}
	return ok(line)
}
