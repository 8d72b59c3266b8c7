package common_test

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-pos/internal/common"
)

func TestWriteErrorAppError(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	common.WriteError(rec, req, common.NotFound("billing not found"))

	require.Equal(t, http.StatusNotFound, rec.Code)
	var env common.Envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	require.False(t, env.Success)
	require.Equal(t, "billing not found", env.Msg)
	require.Equal(t, "NOT_FOUND", env.Error.Code)
}

func TestWriteErrorHidesInternalCause(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	common.WriteError(rec, req, errors.New("dial tcp: connection refused"))

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	require.NotContains(t, rec.Body.String(), "connection refused")
}

func TestSuccessEnvelope(t *testing.T) {
	rec := httptest.NewRecorder()
	common.Success(rec, http.StatusCreated, "created", map[string]string{"id": "1"})
	require.Equal(t, http.StatusCreated, rec.Code)
	require.JSONEq(t, `{"success":true,"msg":"created","data":{"id":"1"}}`, rec.Body.String())
}

func TestValidateStruct(t *testing.T) {
	type payload struct {
		Name  string `json:"name" validate:"required"`
		Price string `json:"price" validate:"required,money"`
	}
	require.NoError(t, common.ValidateStruct(payload{Name: "A", Price: "10.50"}))

	err := common.ValidateStruct(payload{Price: "10.505"})
	require.Error(t, err)
	var appErr *common.AppError
	require.ErrorAs(t, err, &appErr)
	require.Equal(t, http.StatusBadRequest, appErr.HTTPStatus)
	fields := appErr.Details.(map[string]any)["fields"].(map[string]string)
	require.Equal(t, "required", fields["name"])
	require.Equal(t, "money", fields["price"])

	require.Error(t, common.ValidateStruct(payload{Name: "A", Price: "-1"}))
	require.NoError(t, common.ValidateStruct(payload{Name: "A", Price: "9999999999.99"}))
	require.Error(t, common.ValidateStruct(payload{Name: "A", Price: "10000000000"}))
}
