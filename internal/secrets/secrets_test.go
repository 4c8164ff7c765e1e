package secrets

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/aws/aws-sdk-go-v2/service/ssm/types"
	"github.com/stretchr/testify/require"

	"github.com/2389/teams-gateway/internal/config"
)

// fakeAPI is a simple fake implementing ssmAPI for tests.
type fakeAPI struct {
	values    map[string]string
	err       error
	requested []string
	decrypt   []bool
}

func (f *fakeAPI) GetParameter(_ context.Context, in *ssm.GetParameterInput, _ ...func(*ssm.Options)) (*ssm.GetParameterOutput, error) {
	f.requested = append(f.requested, *in.Name)
	f.decrypt = append(f.decrypt, in.WithDecryption != nil && *in.WithDecryption)
	if f.err != nil {
		return nil, f.err
	}
	v, ok := f.values[*in.Name]
	if !ok {
		return &ssm.GetParameterOutput{Parameter: &types.Parameter{Name: in.Name}}, nil
	}
	return &ssm.GetParameterOutput{Parameter: &types.Parameter{
		Name: in.Name, Value: &v, Type: types.ParameterTypeSecureString,
	}}, nil
}

func factoryFor(api *fakeAPI, calls *int) GetterFactory {
	return func(context.Context) (Getter, error) {
		*calls++
		return New(api)
	}
}

func TestGetParameter(t *testing.T) {
	api := &fakeAPI{values: map[string]string{"/gw/pw": "hunter2"}}
	client, err := New(api)
	require.NoError(t, err)

	v, err := client.GetParameter(context.Background(), " /gw/pw ")
	require.NoError(t, err)
	require.Equal(t, "hunter2", v)
	require.Equal(t, []bool{true}, api.decrypt)
}

func TestGetParameter_Errors(t *testing.T) {
	client, err := New(&fakeAPI{})
	require.NoError(t, err)

	_, err = client.GetParameter(context.Background(), "  ")
	require.ErrorContains(t, err, "required")

	_, err = client.GetParameter(context.Background(), "/missing")
	require.ErrorContains(t, err, "has no value")

	client, err = New(&fakeAPI{err: errors.New("AccessDenied")})
	require.NoError(t, err)
	_, err = client.GetParameter(context.Background(), "/gw/pw")
	require.ErrorContains(t, err, "AccessDenied")
}

func TestNew_NilAPI(t *testing.T) {
	_, err := New(nil)
	require.ErrorContains(t, err, "must not be nil")
}

func TestResolveConfig(t *testing.T) {
	api := &fakeAPI{values: map[string]string{
		"/gw/app-password": "bf-secret",
		"/gw/api-key":      "admin-key",
	}}
	cfg := &config.Config{}
	cfg.Bot.AppID = "plain-app-id"
	cfg.Bot.AppPassword = "ssm:/gw/app-password"
	cfg.Auth.APIKey = "ssm:/gw/api-key"

	calls := 0
	n, err := ResolveConfig(context.Background(), cfg, factoryFor(api, &calls))
	require.NoError(t, err)
	require.Equal(t, 2, n)
	require.Equal(t, 1, calls)

	require.Equal(t, "plain-app-id", cfg.Bot.AppID)
	require.Equal(t, "bf-secret", cfg.Bot.AppPassword)
	require.Equal(t, "admin-key", cfg.Auth.APIKey)
	require.ElementsMatch(t, []string{"/gw/app-password", "/gw/api-key"}, api.requested)
}

func TestResolveConfig_NoReferencesSkipsAWS(t *testing.T) {
	cfg := &config.Config{}
	cfg.Bot.AppPassword = "literal"

	n, err := ResolveConfig(context.Background(), cfg, func(context.Context) (Getter, error) {
		t.Fatal("getter factory must not be called")
		return nil, nil
	})
	require.NoError(t, err)
	require.Zero(t, n)
}

func TestResolveConfig_Failures(t *testing.T) {
	cfg := &config.Config{}
	cfg.Auth.JWTSecret = "ssm:/gw/missing"

	calls := 0
	_, err := ResolveConfig(context.Background(), cfg, factoryFor(&fakeAPI{}, &calls))
	require.ErrorContains(t, err, "auth.jwt_secret")
	require.Equal(t, "ssm:/gw/missing", cfg.Auth.JWTSecret, "unresolved value is left as is")

	_, err = ResolveConfig(context.Background(), cfg, func(context.Context) (Getter, error) {
		return nil, errors.New("no credentials")
	})
	require.ErrorContains(t, err, "no credentials")
}

func TestIsReference(t *testing.T) {
	require.True(t, IsReference("ssm:/a"))
	require.False(t, IsReference("SSM:/a"))
	require.False(t, IsReference("/a"))
}
