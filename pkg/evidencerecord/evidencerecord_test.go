package evidencerecord_test

import (
	"crypto"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fancl20/sigval/pkg/diag"
	"github.com/fancl20/sigval/pkg/evidencerecord"
)

func document(name string, sha256 byte) diag.Document {
	return diag.Document{
		Name:    name,
		Digests: map[crypto.Hash][]byte{crypto.SHA256: {sha256}},
	}
}

func archiveObject(documentName string, digest byte) diag.DigestMatcher {
	return diag.DigestMatcher{
		Type:            diag.ArchiveObject,
		DocumentName:    documentName,
		DigestAlgorithm: crypto.SHA256,
		Digest:          []byte{digest},
		Found:           true,
		Intact:          true,
	}
}

func full(names ...string) []diag.SignatureScope {
	var s []diag.SignatureScope
	for _, n := range names {
		s = append(s, diag.SignatureScope{Name: n, DocumentName: n, Kind: diag.FullScope})
	}
	return s
}

func TestResolve(t *testing.T) {
	docs := []diag.Document{document("text1", 1), document("text2", 2)}
	master := &diag.Signature{
		ID:     "S-1",
		Scopes: []diag.SignatureScope{{Name: "signed", DocumentName: "text1", Kind: diag.PartialScope}},
	}
	testCases := map[string]struct {
		Refs   []diag.DigestMatcher
		Docs   []diag.Document
		Master *diag.Signature
		Want   []diag.SignatureScope
	}{
		"by document name": {
			Refs: []diag.DigestMatcher{archiveObject("text2", 2), archiveObject("text1", 1)},
			Docs: docs,
			Want: full("text2", "text1"),
		},
		"single document": {
			Refs: []diag.DigestMatcher{archiveObject("", 1)},
			Docs: docs[:1],
			Want: full("text1"),
		},
		"duplicate digests": {
			Refs: []diag.DigestMatcher{
				archiveObject("text1", 1),
				archiveObject("text1", 1),
				archiveObject("text2", 2),
			},
			Docs: docs,
			Want: full("text1", "text2"),
		},
		"not found references are skipped": {
			Refs: []diag.DigestMatcher{
				archiveObject("text1", 1),
				{Type: diag.ArchiveObject, DocumentName: "text2"},
			},
			Docs: docs,
			Want: full("text1"),
		},
		"orphan references are skipped": {
			Refs: []diag.DigestMatcher{
				archiveObject("text1", 1),
				{Type: diag.OrphanReference, Digest: []byte{9}},
			},
			Docs: docs,
			Want: full("text1"),
		},
		"intact master signature": {
			Refs: []diag.DigestMatcher{
				archiveObject("text2", 2),
				{Type: diag.MasterSignature, Found: true, Intact: true},
			},
			Docs:   docs,
			Master: master,
			Want:   append(full("text2"), master.Scopes...),
		},
		"broken master signature": {
			Refs: []diag.DigestMatcher{
				archiveObject("text2", 2),
				{Type: diag.MasterSignature, Found: true},
			},
			Docs:   docs,
			Master: master,
			Want:   full("text2"),
		},
	}
	for name, tc := range testCases {
		t.Run(name, func(t *testing.T) {
			got, err := evidencerecord.Resolve(tc.Refs, tc.Docs, tc.Master)
			require.NoError(t, err)
			if diff := cmp.Diff(tc.Want, got); diff != "" {
				t.Errorf("scopes mismatch (-want +got):\n%s", diff)
			}
			// Resolution is idempotent.
			again, err := evidencerecord.Resolve(tc.Refs, tc.Docs, tc.Master)
			require.NoError(t, err)
			if diff := cmp.Diff(got, again); diff != "" {
				t.Errorf("second resolution differs (-first +second):\n%s", diff)
			}
		})
	}
}

func TestResolveAmbiguous(t *testing.T) {
	docs := []diag.Document{document("text1", 1), document("text2", 2)}
	_, err := evidencerecord.Resolve([]diag.DigestMatcher{archiveObject("", 1)}, docs, nil)
	assert.True(t, errors.Is(err, evidencerecord.ErrAmbiguousDocument), "got %v", err)
}

func TestResolveUnknownDocument(t *testing.T) {
	docs := []diag.Document{document("text1", 1), document("text2", 2)}
	scopes, err := evidencerecord.Resolve([]diag.DigestMatcher{
		archiveObject("text1", 1),
		archiveObject("ghost", 9),
	}, docs, nil)
	assert.Nil(t, scopes)
	assert.True(t, errors.Is(err, evidencerecord.ErrNotFound), "got %v", err)
	var e *evidencerecord.Error
	require.True(t, errors.As(err, &e))
	assert.Equal(t, "ghost", e.Name)
	assert.Equal(t, "document 'ghost' not supplied", e.Msg)
}

func TestResolveMissingMaster(t *testing.T) {
	assert.Panics(t, func() {
		_, _ = evidencerecord.Resolve([]diag.DigestMatcher{
			{Type: diag.MasterSignature, Found: true, Intact: true},
		}, nil, nil)
	})
	assert.Panics(t, func() {
		_, _ = evidencerecord.ResolveEmbedded(&diag.EvidenceRecord{Embedded: true}, nil, nil)
	})
}

func TestResolveEmbedded(t *testing.T) {
	docs := []diag.Document{document("text1", 1)}
	master := &diag.Signature{ID: "S-1", Scopes: full("text1", "text0")}
	er := &diag.EvidenceRecord{
		ID:                "ER-1",
		Embedded:          true,
		MasterSignatureID: "S-1",
		References: []diag.DigestMatcher{
			archiveObject("text1", 1),
			{Type: diag.MasterSignature, Found: true, Intact: true},
		},
	}
	got, err := evidencerecord.ResolveEmbedded(er, docs, master)
	require.NoError(t, err)
	if diff := cmp.Diff(full("text1", "text0"), got); diff != "" {
		t.Errorf("scopes mismatch (-want +got):\n%s", diff)
	}

	er.References[1].Intact = false
	got, err = evidencerecord.ResolveEmbedded(er, docs, master)
	require.NoError(t, err)
	if diff := cmp.Diff(full("text1"), got); diff != "" {
		t.Errorf("scopes mismatch (-want +got):\n%s", diff)
	}

	assert.Panics(t, func() {
		_, _ = evidencerecord.ResolveEmbedded(er, docs, &diag.Signature{ID: "S-2"})
	})

	detached := &diag.EvidenceRecord{ID: "ER-2", References: []diag.DigestMatcher{archiveObject("text1", 1)}}
	got, err = evidencerecord.ResolveEmbedded(detached, docs, nil)
	require.NoError(t, err)
	assert.Equal(t, full("text1"), got)
}

func TestValidateManifest(t *testing.T) {
	text1, text2 := document("text1", 1), document("text2", 2)
	record := func() *diag.EvidenceRecord {
		return &diag.EvidenceRecord{
			ID:              "ER-1",
			Name:            evidencerecord.DefaultRecordNameERS,
			DigestAlgorithm: crypto.SHA256,
			References:      []diag.DigestMatcher{archiveObject("text1", 1), archiveObject("text2", 2)},
		}
	}
	manifest := func(t *testing.T, docs ...diag.Document) *evidencerecord.Manifest {
		m, err := evidencerecord.NewManifest(evidencerecord.DefaultManifestName,
			evidencerecord.DefaultRecordNameERS, crypto.SHA256, docs)
		require.NoError(t, err)
		return m
	}

	t.Run("complete", func(t *testing.T) {
		m := manifest(t, text1, text2)
		assert.NoError(t, evidencerecord.ValidateManifest(m, record(), []diag.Document{text1, text2}))
	})
	t.Run("document not covered", func(t *testing.T) {
		m := manifest(t, text1)
		err := evidencerecord.ValidateManifest(m, record(), []diag.Document{text1, text2})
		require.Error(t, err)
		assert.True(t, errors.Is(err, evidencerecord.ErrNotFound))
		assert.False(t, errors.Is(err, evidencerecord.ErrDigestMismatch))
		assert.Equal(t, "document 'text2' not covered", err.Error())
		var e *evidencerecord.Error
		require.True(t, errors.As(err, &e))
		assert.Equal(t, "text2", e.Name)
	})
	t.Run("record covers more than the manifest", func(t *testing.T) {
		m := manifest(t, text1)
		err := evidencerecord.ValidateManifest(m, record(), []diag.Document{text1})
		assert.EqualError(t, err, "document 'text2' not covered")
	})
	t.Run("digest algorithm mismatch", func(t *testing.T) {
		m := manifest(t, text1, text2)
		er := record()
		er.DigestAlgorithm = crypto.SHA512
		err := evidencerecord.ValidateManifest(m, er, []diag.Document{text1, text2})
		assert.True(t, errors.Is(err, evidencerecord.ErrDigestMismatch))
		assert.Contains(t, err.Error(), "SHA-256")
		assert.Contains(t, err.Error(), "SHA-512")
	})
	t.Run("document digest mismatch", func(t *testing.T) {
		m := manifest(t, text1, text2)
		err := evidencerecord.ValidateManifest(m, record(), []diag.Document{text1, document("text2", 3)})
		assert.True(t, errors.Is(err, evidencerecord.ErrDigestMismatch))
		assert.Contains(t, err.Error(), "'text2'")
	})
	t.Run("naming violation", func(t *testing.T) {
		m := manifest(t, text1, text2)
		m.Name = "META-INF/manifest.xml"
		err := evidencerecord.ValidateManifest(m, record(), []diag.Document{text1, text2})
		assert.True(t, errors.Is(err, evidencerecord.ErrNamingViolation))
		assert.Contains(t, err.Error(), "META-INF/manifest.xml")
	})
	t.Run("missing digest", func(t *testing.T) {
		_, err := evidencerecord.NewManifest(evidencerecord.DefaultManifestName, "",
			crypto.SHA512, []diag.Document{text1})
		assert.True(t, errors.Is(err, evidencerecord.ErrNotFound))
	})
}

func TestValidateNames(t *testing.T) {
	testCases := map[string]struct {
		Manifest, Record string
		Valid            bool
	}{
		"defaults ers": {
			Manifest: evidencerecord.DefaultManifestName,
			Record:   evidencerecord.DefaultRecordNameERS,
			Valid:    true,
		},
		"defaults xml": {
			Manifest: "META-INF/ASiCEvidenceRecordManifest.xml",
			Record:   "META-INF/evidencerecord-2.xml",
			Valid:    true,
		},
		"manifest outside META-INF": {
			Manifest: "ASiCEvidenceRecordManifest001.xml",
			Record:   evidencerecord.DefaultRecordNameERS,
		},
		"manifest in sub directory": {
			Manifest: "META-INF/sub/ASiCEvidenceRecordManifest001.xml",
			Record:   evidencerecord.DefaultRecordNameERS,
		},
		"record extension": {
			Manifest: evidencerecord.DefaultManifestName,
			Record:   "META-INF/evidencerecord001.p7s",
		},
		"record name": {
			Manifest: evidencerecord.DefaultManifestName,
			Record:   "META-INF/record.ers",
		},
	}
	for name, tc := range testCases {
		t.Run(name, func(t *testing.T) {
			err := evidencerecord.ValidateNames(tc.Manifest, tc.Record)
			if tc.Valid {
				assert.NoError(t, err)
				return
			}
			assert.True(t, errors.Is(err, evidencerecord.ErrNamingViolation), "got %v", err)
		})
	}
}
