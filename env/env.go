package env

import (
	"context"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/mikeydub/go-union/service/logger"
	"github.com/spf13/viper"
)

var validators = map[string][]string{}

var v = validator.New()

var validatorsMu = &sync.Mutex{}

func init() {
	v.RegisterValidation("required_for_env", RequiredForEnv)
}

// RegisterValidation registers validator tags that are checked every time the variable is read.
func RegisterValidation(name string, tags ...string) {
	validatorsMu.Lock()
	defer validatorsMu.Unlock()
	validators[name] = dedupe(append(validators[name], tags...))
}

func validate(ctx context.Context, name string) {
	validatorsMu.Lock()
	defer validatorsMu.Unlock()
	for _, tag := range validators[name] {
		err := v.Var(viper.GetString(name), tag)
		if err != nil {
			logger.For(ctx).Errorf("invalid env var: %s, tag: %s, err: %s", name, tag, err.Error())
		}
	}
}

func Get[T any](ctx context.Context, name string) T {
	it, _ := GetIfExists[T](ctx, name)
	return it
}

func GetIfExists[T any](ctx context.Context, name string) (T, bool) {
	validate(ctx, name)

	if !viper.IsSet(name) {
		return *new(T), false
	}

	it, ok := viper.Get(name).(T)
	if !ok {
		logger.For(ctx).Errorf("invalid env var: %s, expected type: %T", name, it)
		return *new(T), false
	}

	return it, true
}

func GetString(name string) string {
	validate(context.Background(), name)
	return viper.GetString(name)
}

// GetInt uses viper's casting so values set through the environment (always strings) are accepted.
func GetInt(name string) int {
	validate(context.Background(), name)
	return viper.GetInt(name)
}

func GetFloat64(name string) float64 {
	validate(context.Background(), name)
	return viper.GetFloat64(name)
}

func GetBool(name string) bool {
	validate(context.Background(), name)
	return viper.GetBool(name)
}

// GetStringList reads a comma separated variable, trimming blanks.
func GetStringList(name string) []string {
	raw := GetString(name)
	if raw == "" {
		return nil
	}
	var out []string
	for _, s := range strings.Split(raw, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

var RequiredForEnv validator.Func = func(fl validator.FieldLevel) bool {
	s := fl.Field().String()
	if s == "" {
		return false
	}

	spl := strings.Split(s, "=")
	if len(spl) != 2 {
		return false
	}

	return spl[1] == GetString("ENV")
}

func dedupe(src []string) []string {
	result := src[:0]

	seen := make(map[string]bool)
	for _, x := range src {
		if !seen[x] {
			result = append(result, x)
			seen[x] = true
		}
	}
	return result
}
