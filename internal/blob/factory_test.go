package blob

import (
	"context"
	"errors"
	"strings"
	"testing"
)

func TestOpen_Drivers(t *testing.T) {
	ctx := context.Background()
	cases := []struct {
		name string
		opts Options
		want Driver
	}{
		{"default is filesystem", Options{FSRoot: t.TempDir()}, DriverFilesystem},
		{"filesystem", Options{Driver: DriverFilesystem, FSRoot: t.TempDir()}, DriverFilesystem},
		{"memory", Options{Driver: DriverMemory}, DriverMemory},
		{"s3", Options{Driver: DriverS3, S3: S3Config{Bucket: "b", Endpoint: "http://127.0.0.1:9000", PathStyle: true, AccessKeyID: "a", SecretAccessKey: "s"}}, DriverS3},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			store, err := Open(ctx, tc.opts)
			if err != nil {
				t.Fatalf("Open: %v", err)
			}
			if store.Driver() != tc.want {
				t.Fatalf("driver = %s, want %s", store.Driver(), tc.want)
			}
		})
	}
}

func TestOpen_Errors(t *testing.T) {
	if _, err := Open(context.Background(), Options{Driver: "tape"}); err == nil {
		t.Fatal("expected unknown driver error")
	}
	if _, err := Open(context.Background(), Options{Driver: DriverS3}); err == nil {
		t.Fatal("expected missing bucket error")
	}
}

func TestStoresShareSentinels(t *testing.T) {
	ctx := context.Background()
	fsStore, err := NewFilesystem(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	for _, store := range []Store{NewMemory(), fsStore, NewFakeS3()} {
		if _, err := store.Put(ctx, "k", strings.NewReader("v"), PutOptions{}); err != nil {
			t.Fatalf("%s put: %v", store.Driver(), err)
		}
		if _, err := store.Put(ctx, "k", strings.NewReader("v"), PutOptions{}); !errors.Is(err, ErrExists) {
			t.Fatalf("%s: expected ErrExists, got %v", store.Driver(), err)
		}
		if _, err := store.Head(ctx, "missing"); !errors.Is(err, ErrNotFound) {
			t.Fatalf("%s: expected ErrNotFound, got %v", store.Driver(), err)
		}
	}
}
