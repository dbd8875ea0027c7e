package cache

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// LoadOrBuild returns the artifact stored under name, or builds, stores and
// returns it when the artifact is missing or cannot be decoded.
// A failed build writes nothing. A failed save is logged and the built value
// is still returned.
func LoadOrBuild[T any](
	ctx context.Context,
	store Store,
	name string,
	codec Codec[T],
	build func(context.Context) (T, error),
) (T, error) {
	start := time.Now()
	data, err := store.Load(ctx, name)
	switch {
	case err == nil:
		v, err := codec.Decode(data)
		if err == nil {
			log.Infof("loaded %s from cache (%d bytes, %v)", name, len(data), time.Since(start))
			return v, nil
		}
		log.Warnf("cached %s is corrupt, rebuilding: %v", name, err)
	case errors.Is(err, ErrCacheMiss):
		log.Infof("cache miss: %s", name)
	default:
		log.Warnf("failed to load %s from cache, rebuilding: %v", name, err)
	}

	start = time.Now()
	v, err := build(ctx)
	if err != nil {
		var zero T
		return zero, fmt.Errorf("build %s: %w", name, err)
	}
	log.Infof("built %s in %v", name, time.Since(start))
	data, err = codec.Encode(v)
	if err != nil {
		log.Errorf("failed to encode %s: %v", name, err)
		return v, nil
	}
	if err := store.Save(ctx, name, data); err != nil {
		log.Errorf("failed to save %s: %v", name, err)
		return v, nil
	}
	log.Infof("saved %s (%d bytes)", name, len(data))
	return v, nil
}

// Invalidate deletes the named artifacts so the next LoadOrBuild rebuilds them.
func Invalidate(ctx context.Context, store Store, names ...string) error {
	errs := make([]error, 0)
	for _, name := range names {
		if err := store.Delete(ctx, name); err != nil {
			errs = append(errs, fmt.Errorf("delete %s: %w", name, err))
		}
	}
	return errors.Join(errs...)
}

// Copy saves the artifacts stored under names in src into dst. Missing
// artifacts are errors; every name is attempted.
func Copy(ctx context.Context, dst, src Store, names ...string) error {
	errs := make([]error, 0)
	for _, name := range names {
		data, err := src.Load(ctx, name)
		if err != nil {
			errs = append(errs, fmt.Errorf("load %s: %w", name, err))
			continue
		}
		if err := dst.Save(ctx, name, data); err != nil {
			errs = append(errs, fmt.Errorf("save %s: %w", name, err))
		}
	}
	return errors.Join(errs...)
}
