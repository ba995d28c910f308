package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
)

var (
	ErrAssetNotFound  = errors.New("asset not found")
	ErrDuplicateAsset = errors.New("asset with this upload or asset id already exists")
)

const assetColumns = `id, title, source_type, embed_url, COALESCE(upload_id, ''), COALESCE(asset_id, ''),
	playback_id, status, duration, aspect_ratio, thumbnail_url, non_standard_input, subtitles,
	error_messages, placeholder, created_at, updated_at`

// AssetRepository handles video asset database operations.
type AssetRepository struct {
	db *DB
}

// NewAssetRepository creates a new asset repository.
func NewAssetRepository(db *DB) *AssetRepository {
	return &AssetRepository{db: db}
}

// CreateAssetParams contains parameters for creating an asset.
type CreateAssetParams struct {
	ID           string
	Title        string
	SourceType   SourceType
	EmbedURL     string
	UploadID     string
	AssetID      string
	PlaybackID   string
	Status       AssetStatus
	Duration     float64
	AspectRatio  string
	ThumbnailURL string
	Placeholder  bool
}

func scanAsset(row pgx.Row) (*VideoAsset, error) {
	var asset VideoAsset
	var nsiJSON, subsJSON, errJSON []byte
	err := row.Scan(
		&asset.ID,
		&asset.Title,
		&asset.SourceType,
		&asset.EmbedURL,
		&asset.Remote.UploadID,
		&asset.Remote.AssetID,
		&asset.Remote.PlaybackID,
		&asset.Remote.Status,
		&asset.Duration,
		&asset.AspectRatio,
		&asset.ThumbnailURL,
		&nsiJSON,
		&subsJSON,
		&errJSON,
		&asset.Placeholder,
		&asset.CreatedAt,
		&asset.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if len(nsiJSON) > 0 {
		if err := json.Unmarshal(nsiJSON, &asset.NonStandardInput); err != nil {
			return nil, fmt.Errorf("unmarshal non_standard_input: %w", err)
		}
	}
	if len(subsJSON) > 0 {
		if err := json.Unmarshal(subsJSON, &asset.Subtitles); err != nil {
			return nil, fmt.Errorf("unmarshal subtitles: %w", err)
		}
	}
	if len(errJSON) > 0 {
		if err := json.Unmarshal(errJSON, &asset.ErrorMessages); err != nil {
			return nil, fmt.Errorf("unmarshal error_messages: %w", err)
		}
	}
	return &asset, nil
}

// Create inserts a new asset. A collision on upload_id or asset_id returns
// ErrDuplicateAsset so the caller can re-read the winning record.
func (r *AssetRepository) Create(ctx context.Context, params CreateAssetParams) (*VideoAsset, error) {
	if params.SourceType == "" {
		params.SourceType = SourceRemote
	}
	if params.Status == "" {
		params.Status = StatusUploading
	}

	asset, err := scanAsset(r.db.pool.QueryRow(ctx, `
		INSERT INTO video_assets (id, title, source_type, embed_url, upload_id, asset_id, playback_id,
			status, duration, aspect_ratio, thumbnail_url, placeholder)
		VALUES ($1, $2, $3, $4, NULLIF($5, ''), NULLIF($6, ''), $7, $8, $9, $10, $11, $12)
		RETURNING `+assetColumns,
		params.ID, params.Title, params.SourceType, params.EmbedURL, params.UploadID, params.AssetID,
		params.PlaybackID, params.Status, params.Duration, params.AspectRatio, params.ThumbnailURL,
		params.Placeholder,
	))
	if err != nil {
		if isDuplicateKeyError(err) {
			return nil, ErrDuplicateAsset
		}
		return nil, fmt.Errorf("insert asset: %w", err)
	}
	return asset, nil
}

func (r *AssetRepository) getBy(ctx context.Context, column, value string) (*VideoAsset, error) {
	asset, err := scanAsset(r.db.pool.QueryRow(ctx,
		`SELECT `+assetColumns+` FROM video_assets WHERE `+column+` = $1`, value))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAssetNotFound
		}
		return nil, fmt.Errorf("query asset by %s: %w", column, err)
	}
	return asset, nil
}

// GetByID retrieves an asset by local ID.
func (r *AssetRepository) GetByID(ctx context.Context, id string) (*VideoAsset, error) {
	return r.getBy(ctx, "id", id)
}

// FindByUploadID retrieves an asset by its direct upload id.
func (r *AssetRepository) FindByUploadID(ctx context.Context, uploadID string) (*VideoAsset, error) {
	return r.getBy(ctx, "upload_id", uploadID)
}

// FindByAssetID retrieves an asset by its remote asset id.
func (r *AssetRepository) FindByAssetID(ctx context.Context, assetID string) (*VideoAsset, error) {
	return r.getBy(ctx, "asset_id", assetID)
}

// Update applies patch with the merge rules documented on AssetPatch. The
// rules are evaluated inside the statement, so concurrent writers cannot
// regress status or overwrite a first-written value.
func (r *AssetRepository) Update(ctx context.Context, id string, patch AssetPatch) (*VideoAsset, error) {
	var status *string
	if patch.Status != nil {
		s := string(*patch.Status)
		status = &s
	}

	var nsiJSON, subsJSON, errJSON []byte
	var err error
	if patch.NonStandardInput != nil {
		if nsiJSON, err = json.Marshal(patch.NonStandardInput); err != nil {
			return nil, fmt.Errorf("marshal non_standard_input: %w", err)
		}
	}
	if len(patch.Subtitles) > 0 {
		if subsJSON, err = json.Marshal(patch.Subtitles); err != nil {
			return nil, fmt.Errorf("marshal subtitles: %w", err)
		}
	}
	if patch.ErrorMessages != nil {
		if errJSON, err = json.Marshal(patch.ErrorMessages); err != nil {
			return nil, fmt.Errorf("marshal error_messages: %w", err)
		}
	}

	asset, err := scanAsset(r.db.pool.QueryRow(ctx, `
		UPDATE video_assets SET
			title = COALESCE($2::text, title),
			upload_id = COALESCE(upload_id, NULLIF($3::text, '')),
			asset_id = COALESCE(asset_id, NULLIF($4::text, '')),
			playback_id = CASE WHEN playback_id = '' THEN COALESCE($5::text, '') ELSE playback_id END,
			status = CASE
				WHEN $6::text IS NULL THEN status
				WHEN status IN ('ready', 'error') THEN status
				WHEN asset_status_rank($6::text) > asset_status_rank(status) THEN $6::text
				ELSE status
			END,
			duration = CASE WHEN duration = 0 AND COALESCE($7::double precision, 0) > 0 THEN $7::double precision ELSE duration END,
			aspect_ratio = CASE WHEN aspect_ratio = '' THEN COALESCE($8::text, '') ELSE aspect_ratio END,
			thumbnail_url = CASE WHEN thumbnail_url = '' THEN COALESCE($9::text, '') ELSE thumbnail_url END,
			non_standard_input = CASE
				WHEN $10::jsonb IS NULL THEN non_standard_input
				ELSE jsonb_set($10::jsonb, '{detected}', to_jsonb(
					COALESCE(($10::jsonb->>'detected')::boolean, false)
					OR COALESCE((non_standard_input->>'detected')::boolean, false)))
			END,
			subtitles = CASE WHEN jsonb_array_length(subtitles) = 0 AND $11::jsonb IS NOT NULL THEN $11::jsonb ELSE subtitles END,
			error_messages = COALESCE($12::jsonb, error_messages),
			updated_at = NOW()
		WHERE id = $1
		RETURNING `+assetColumns,
		id, patch.Title, patch.UploadID, patch.AssetID, patch.PlaybackID, status, patch.Duration,
		patch.AspectRatio, patch.ThumbnailURL, nsiJSON, subsJSON, errJSON,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAssetNotFound
		}
		if isDuplicateKeyError(err) {
			return nil, ErrDuplicateAsset
		}
		return nil, fmt.Errorf("update asset: %w", err)
	}
	return asset, nil
}

// Delete removes an asset.
func (r *AssetRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.pool.Exec(ctx, `DELETE FROM video_assets WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete asset: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrAssetNotFound
	}
	return nil
}

// ListParams contains parameters for listing assets.
type ListParams struct {
	Status *AssetStatus
	Limit  int
	Offset int
}

// List retrieves assets with optional status filtering.
func (r *AssetRepository) List(ctx context.Context, params ListParams) ([]*VideoAsset, int, error) {
	if params.Limit <= 0 {
		params.Limit = 50
	}
	if params.Limit > 100 {
		params.Limit = 100
	}

	baseQuery := "FROM video_assets"
	var args []interface{}
	argIdx := 1

	if params.Status != nil {
		baseQuery += fmt.Sprintf(" WHERE status = $%d", argIdx)
		args = append(args, *params.Status)
		argIdx++
	}

	var total int
	if err := r.db.pool.QueryRow(ctx, "SELECT COUNT(*) "+baseQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count assets: %w", err)
	}

	selectQuery := fmt.Sprintf(`SELECT %s %s ORDER BY created_at DESC LIMIT $%d OFFSET $%d`,
		assetColumns, baseQuery, argIdx, argIdx+1)
	args = append(args, params.Limit, params.Offset)

	rows, err := r.db.pool.Query(ctx, selectQuery, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("query assets: %w", err)
	}
	defer rows.Close()

	var assets []*VideoAsset
	for rows.Next() {
		asset, err := scanAsset(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan asset: %w", err)
		}
		assets = append(assets, asset)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate assets: %w", err)
	}

	return assets, total, nil
}
