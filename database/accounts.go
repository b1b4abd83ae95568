package database

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
)

var (
	ErrNotFound        = errors.New("not found")
	ErrAlreadyApproved = errors.New("already approved")
	ErrUsernameTaken   = errors.New("username already exists")
	ErrIdentityTaken   = errors.New("identity already bound to another account")
)

func (store *Store) CreateAccount(ctx context.Context, account *Account) error {
	var existing int64
	if result := store.DB.WithContext(ctx).Model(&Account{}).Where("username = ?", account.Username).Count(&existing); result.Error != nil {
		return result.Error
	}
	if existing > 0 {
		return ErrUsernameTaken
	}

	if result := store.DB.WithContext(ctx).Create(account); result.Error != nil {
		if errors.Is(result.Error, gorm.ErrDuplicatedKey) {
			return ErrIdentityTaken
		}
		return result.Error
	}
	return nil
}

func (store *Store) Account(ctx context.Context, id uint64) (*Account, error) {
	var account Account
	if result := store.DB.WithContext(ctx).First(&account, id); result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, result.Error
	}
	return &account, nil
}

func (store *Store) AccountByUsername(ctx context.Context, username string) (*Account, error) {
	var account Account
	if result := store.DB.WithContext(ctx).First(&account, "username = ?", username); result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, result.Error
	}
	return &account, nil
}

func (store *Store) Accounts(ctx context.Context) ([]Account, error) {
	var accounts []Account
	if result := store.DB.WithContext(ctx).Order("created_at ASC").Find(&accounts); result.Error != nil {
		return nil, result.Error
	}
	return accounts, nil
}

// AccountsBoundTo returns every account holding an identity on platform.
func (store *Store) AccountsBoundTo(ctx context.Context, platform Platform) ([]Account, error) {
	column, _, err := identityColumns(platform)
	if err != nil {
		return nil, err
	}

	var accounts []Account
	if result := store.DB.WithContext(ctx).Where(column + " IS NOT NULL").Order("id ASC").Find(&accounts); result.Error != nil {
		return nil, result.Error
	}
	return accounts, nil
}

// ApproveAccount flips is_approved once; approving twice is rejected.
func (store *Store) ApproveAccount(ctx context.Context, id uint64) (*Account, error) {
	result := store.DB.WithContext(ctx).Model(&Account{}).
		Where("id = ? AND is_approved = ?", id, false).
		Update("is_approved", true)
	if result.Error != nil {
		return nil, result.Error
	}

	account, err := store.Account(ctx, id)
	if err != nil {
		return nil, err
	}
	if result.RowsAffected == 0 {
		return account, ErrAlreadyApproved
	}
	return account, nil
}

func (store *Store) SetAdmin(ctx context.Context, id uint64, isAdmin bool) (*Account, error) {
	account, err := store.Account(ctx, id)
	if err != nil {
		return nil, err
	}

	if result := store.DB.WithContext(ctx).Model(account).Update("is_admin", isAdmin); result.Error != nil {
		return nil, result.Error
	}
	account.IsAdmin = isAdmin
	return account, nil
}

// DeleteAccount removes the account and every report it filed.
func (store *Store) DeleteAccount(ctx context.Context, id uint64) (*Account, error) {
	var account Account
	err := store.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if result := tx.First(&account, id); result.Error != nil {
			if errors.Is(result.Error, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return result.Error
		}

		if result := tx.Where("reporter_id = ?", id).Delete(&Report{}); result.Error != nil {
			return result.Error
		}
		return tx.Delete(&account).Error
	})
	if err != nil {
		return nil, err
	}
	return &account, nil
}

// BindIdentity attaches an external identity to the account, replacing any
// previous binding for that platform on this account only. An identity
// already held by a different account is never reassigned.
func (store *Store) BindIdentity(ctx context.Context, accountID uint64, platform Platform, externalID, name string) (*Account, error) {
	idColumn, nameColumn, err := identityColumns(platform)
	if err != nil {
		return nil, err
	}

	var account Account
	err = store.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if result := tx.First(&account, accountID); result.Error != nil {
			if errors.Is(result.Error, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return result.Error
		}

		var holders int64
		if result := tx.Model(&Account{}).Where(idColumn+" = ? AND id <> ?", externalID, accountID).Count(&holders); result.Error != nil {
			return result.Error
		}
		if holders > 0 {
			return ErrIdentityTaken
		}

		result := tx.Model(&account).Updates(map[string]interface{}{
			idColumn:   externalID,
			nameColumn: Ptr(name),
		})
		if errors.Is(result.Error, gorm.ErrDuplicatedKey) {
			return ErrIdentityTaken
		}
		return result.Error
	})
	if err != nil {
		return nil, err
	}

	return store.Account(ctx, accountID)
}

// UpdateDisplayName refreshes the cached display name for a bound platform.
func (store *Store) UpdateDisplayName(ctx context.Context, accountID uint64, platform Platform, name string) error {
	_, nameColumn, err := identityColumns(platform)
	if err != nil {
		return err
	}

	result := store.DB.WithContext(ctx).Model(&Account{}).Where("id = ?", accountID).Update(nameColumn, Ptr(name))
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func identityColumns(platform Platform) (string, string, error) {
	switch platform {
	case PlatformSteam:
		return "steam_id", "steam_name", nil
	case PlatformDiscord:
		return "discord_id", "discord_name", nil
	default:
		return "", "", fmt.Errorf("unknown platform %q", platform)
	}
}
