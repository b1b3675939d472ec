// Copyright (c) 2026 Kevin Zang (kevinzang). All rights reserved.
// Use of this source code is governed by the MIT License.
//
// ResolveBridge - DaVinci Resolve AI 字幕桥接服务

package supervisor

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ZSC714725/resolvebridge/internal/srt"
	"github.com/ZSC714725/resolvebridge/internal/timeline"
)

const testSRT = "1\n00:00:00,000 --> 00:00:05,000\nHello from the helper\n\n"

func writeSRT(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "out.srt")
	require.NoError(t, os.WriteFile(path, []byte(testSRT), 0o644))
	return path
}

func TestImportMissingFile(t *testing.T) {
	remote := timeline.NewRemote()
	remote.SetInfo(&timeline.Info{Name: "tl", FPS: 24})
	imp := NewImporter(remote, "", nil)

	err := imp.Import(filepath.Join(t.TempDir(), "nope.srt"))
	require.ErrorIs(t, err, os.ErrNotExist)
	assert.Empty(t, remote.Imports(0))
}

func TestImportEmptyFile(t *testing.T) {
	remote := timeline.NewRemote()
	remote.SetInfo(&timeline.Info{Name: "tl", FPS: 24})
	imp := NewImporter(remote, "", nil)

	path := filepath.Join(t.TempDir(), "empty.srt")
	require.NoError(t, os.WriteFile(path, nil, 0o644))

	err := imp.Import(path)
	require.ErrorIs(t, err, ErrEmptySubtitle)
	assert.Empty(t, remote.Imports(0))
}

func TestImportCuelessFile(t *testing.T) {
	remote := timeline.NewRemote()
	remote.SetInfo(&timeline.Info{Name: "tl", FPS: 24})
	imp := NewImporter(remote, "", nil)

	path := filepath.Join(t.TempDir(), "junk.srt")
	require.NoError(t, os.WriteFile(path, []byte("helper crashed mid-write\n"), 0o644))

	err := imp.Import(path)
	require.ErrorIs(t, err, srt.ErrNoCues)
	assert.Empty(t, remote.Imports(0))
}

func TestImportNoTimeline(t *testing.T) {
	remote := timeline.NewRemote()
	imp := NewImporter(remote, "", nil)

	err := imp.Import(writeSRT(t))
	require.ErrorIs(t, err, timeline.ErrNoTimeline)
}

func TestImportPlacesAtTimelineStart(t *testing.T) {
	remote := timeline.NewRemote()
	remote.SetInfo(&timeline.Info{Name: "tl", FPS: 24, StartFrame: 86400})
	imp := NewImporter(remote, "", nil)

	require.NoError(t, imp.Import(writeSRT(t)))

	reqs := remote.Imports(0)
	require.Len(t, reqs, 1)
	assert.Equal(t, DefaultTrackName, reqs[0].Track)
	assert.True(t, reqs[0].CreateTrack)
	assert.Equal(t, 86400, reqs[0].StartFrame)
}

func TestImportPlacesAtInMark(t *testing.T) {
	remote := timeline.NewRemote()
	remote.SetInfo(&timeline.Info{
		Name: "tl", FPS: 24, StartFrame: 86400,
		Marks: &timeline.Marks{In: 86500, Out: 86700},
	})
	imp := NewImporter(remote, "Captions", nil)

	require.NoError(t, imp.Import(writeSRT(t)))

	reqs := remote.Imports(0)
	require.Len(t, reqs, 1)
	assert.Equal(t, "Captions", reqs[0].Track)
	assert.Equal(t, 86500, reqs[0].StartFrame)
}

// Re-invocation after a prior successful import is an independent import
func TestImportTwiceIsIndependent(t *testing.T) {
	remote := timeline.NewRemote()
	remote.SetInfo(&timeline.Info{Name: "tl", FPS: 24})
	imp := NewImporter(remote, "", nil)

	require.NoError(t, imp.Import(writeSRT(t)))
	require.NoError(t, imp.Import(writeSRT(t)))
	assert.Len(t, remote.Imports(0), 2)
}
