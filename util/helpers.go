package util

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/gin-gonic/gin"
)

// DefaultSearchDepth represents the maximum amount of outer directories searched by FindFile
const DefaultSearchDepth = 5
const GinContextKey string = "GinContextKey"

// ContainsString checks whether an item exists in a slice
func ContainsString(s []string, str string) bool {
	for _, v := range s {
		if v == str {
			return true
		}
	}
	return false
}

// Map applies a function to each element of a slice, returning a new slice
func Map[T, U any](xs []T, f func(T) (U, error)) ([]U, error) {
	result := make([]U, len(xs))
	for i, x := range xs {
		it, err := f(x)
		if err != nil {
			return nil, err
		}
		result[i] = it
	}
	return result, nil
}

// MapWithoutError applies a function that can't fail to each element of a slice
func MapWithoutError[T, U any](xs []T, f func(T) U) []U {
	result := make([]U, len(xs))
	for i, x := range xs {
		result[i] = f(x)
	}
	return result
}

// Filter returns the elements of a slice that satisfy the predicate
func Filter[T any](xs []T, keep func(T) bool) []T {
	result := make([]T, 0, len(xs))
	for _, x := range xs {
		if keep(x) {
			result = append(result, x)
		}
	}
	return result
}

// Dedupe removes duplicate elements from a slice, preserving the order of first occurrence
func Dedupe[T comparable](src []T, filterInPlace bool) []T {
	var result []T
	if filterInPlace {
		result = src[:0]
	} else {
		result = make([]T, 0, len(src))
	}
	seen := make(map[T]bool)
	for _, x := range src {
		if !seen[x] {
			result = append(result, x)
			seen[x] = true
		}
	}
	return result
}

// Contains checks whether an item exists in a slice
func Contains[T comparable](s []T, item T) bool {
	for _, v := range s {
		if v == item {
			return true
		}
	}
	return false
}

// Chunk splits a slice into consecutive chunks of at most size elements
func Chunk[T any](xs []T, size int) [][]T {
	if size <= 0 {
		size = len(xs)
	}
	var chunks [][]T
	for start := 0; start < len(xs); start += size {
		end := start + size
		if end > len(xs) {
			end = len(xs)
		}
		chunks = append(chunks, xs[start:end])
	}
	return chunks
}

// GroupBy groups the elements of a slice by a key, preserving element order inside each group
func GroupBy[K comparable, T any](xs []T, key func(T) K) map[K][]T {
	groups := make(map[K][]T)
	for _, x := range xs {
		k := key(x)
		groups[k] = append(groups[k], x)
	}
	return groups
}

// SortedKeys returns the keys of a map sorted by their string representation
func SortedKeys[K ~string, V any](m map[K]V) []K {
	keys := make([]K, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}

// ToPointer returns a pointer to the given value
func ToPointer[T any](v T) *T {
	return &v
}

// FromPointer returns the value of a pointer, or the zero value if the pointer is nil
func FromPointer[T any](s *T) T {
	if s == nil {
		return *new(T)
	}
	return *s
}

// ErrorAs reports whether err, or any error in its chain, is of type T
func ErrorAs[T error](err error) bool {
	var it T
	return errors.As(err, &it)
}

// GinContextFromContext retrieves a gin.Context previously stored in the request context via the GinContextToContext middleware,
// or panics if no gin.Context can be retrieved.
func GinContextFromContext(ctx context.Context) *gin.Context {
	if gc, ok := ctx.(*gin.Context); ok {
		return gc
	}

	ginContext := ctx.Value(GinContextKey)
	if ginContext == nil {
		panic("gin.Context not found in current context")
	}

	gc, ok := ginContext.(*gin.Context)
	if !ok {
		panic("gin.Context has wrong type")
	}

	return gc
}

// FindFile finds a file relative to the working directory
// by searching outer directories up to the search depth.
func FindFile(f string, searchDepth int) (string, error) {
	for i := 0; i < searchDepth; i++ {
		_, err := os.Stat(f)
		if err == nil {
			return filepath.Abs(f)
		}
		f = filepath.Join("..", f)
	}
	return "", fmt.Errorf("could not find file '%s' in path", f)
}
