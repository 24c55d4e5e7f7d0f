package protocol

import (
	"bytes"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// Per-type JSON Schemas for client -> gateway frames. Modeled directly on
// haasonsaas-nexus's internal/gateway/ws_schema.go: one raw-string schema
// constant per message type, compiled lazily and cached.
const (
	chatSchema = `{
		"type": "object",
		"properties": {
			"type": {"const": "chat"},
			"messages": {
				"type": "array",
				"items": {
					"type": "object",
					"properties": {
						"role": {"type": "string"},
						"content": {"type": "string"}
					},
					"required": ["role"]
				}
			}
		},
		"required": ["type", "messages"]
	}`

	cancelSchema = `{
		"type": "object",
		"properties": {"type": {"const": "cancel"}},
		"required": ["type"]
	}`

	reloadSchema = `{
		"type": "object",
		"properties": {
			"type": {"const": "reload"},
			"provider": {"type": "string"},
			"model": {"type": "string"},
			"base_url": {"type": "string"}
		},
		"required": ["type"]
	}`

	authResponseSchema = `{
		"type": "object",
		"properties": {
			"type": {"const": "auth_response"},
			"code": {"type": "string"}
		},
		"required": ["type", "code"]
	}`

	unlockVaultSchema = `{
		"type": "object",
		"properties": {
			"type": {"const": "unlock_vault"},
			"password": {"type": "string"}
		},
		"required": ["type", "password"]
	}`

	toolApprovalResponseSchema = `{
		"type": "object",
		"properties": {
			"type": {"const": "tool_approval_response"},
			"id": {"type": "string"},
			"approved": {"type": "boolean"}
		},
		"required": ["type", "id", "approved"]
	}`

	userPromptResponseSchema = `{
		"type": "object",
		"properties": {
			"type": {"const": "user_prompt_response"},
			"id": {"type": "string"},
			"value": {"type": "string"}
		},
		"required": ["type", "id"]
	}`

	secretsNameOnlySchema = `{
		"type": "object",
		"properties": {
			"type": {"type": "string"},
			"name": {"type": "string"}
		},
		"required": ["type", "name"]
	}`

	secretsTypeOnlySchema = `{
		"type": "object",
		"properties": {"type": {"type": "string"}},
		"required": ["type"]
	}`

	secretsVerifyTOTPSchema = `{
		"type": "object",
		"properties": {
			"type": {"const": "secrets_verify_totp"},
			"code": {"type": "string"}
		},
		"required": ["type", "code"]
	}`
)

var requestSchemas = map[string]string{
	TypeChat:                    chatSchema,
	TypeCancel:                  cancelSchema,
	TypeReload:                  reloadSchema,
	TypeAuthResponse:            authResponseSchema,
	TypeUnlockVault:             unlockVaultSchema,
	TypeToolApprovalResponse:    toolApprovalResponseSchema,
	TypeUserPromptResponse:      userPromptResponseSchema,
	TypeSecretsList:             secretsTypeOnlySchema,
	TypeSecretsGet:              secretsNameOnlySchema,
	TypeSecretsPeek:             secretsNameOnlySchema,
	TypeSecretsDeleteCredential: secretsNameOnlySchema,
	TypeSecretsSetDisabled:      secretsNameOnlySchema,
	TypeSecretsSetPolicy:        secretsNameOnlySchema,
	TypeSecretsStore:            secretsNameOnlySchema,
	TypeSecretsSetupTOTP:        secretsTypeOnlySchema,
	TypeSecretsVerifyTOTP:       secretsVerifyTOTPSchema,
	TypeSecretsRemoveTOTP:       secretsTypeOnlySchema,
}

var (
	registryOnce sync.Once
	compiled     map[string]*jsonschema.Schema
	compileErr   error
)

func initSchemas() {
	c := jsonschema.NewCompiler()
	compiled = make(map[string]*jsonschema.Schema, len(requestSchemas))
	for frameType, raw := range requestSchemas {
		url := "mem://protocol/" + frameType + ".json"
		if err := c.AddResource(url, bytes.NewReader([]byte(raw))); err != nil {
			compileErr = err
			return
		}
		s, err := c.Compile(url)
		if err != nil {
			compileErr = err
			return
		}
		compiled[frameType] = s
	}
}

// Validate checks a decoded frame value (from json.Unmarshal into `any`)
// against the schema registered for frameType. Unknown frame types are a
// validation error in their own right - callers treat that as "unknown
// frame" per spec.md §4.7.
func Validate(frameType string, value any) error {
	registryOnce.Do(initSchemas)
	if compileErr != nil {
		return compileErr
	}
	s, ok := compiled[frameType]
	if !ok {
		return ErrUnknownFrameType
	}
	return s.Validate(value)
}
