package notifications

import (
	"context"
	"fmt"

	"gitlab.com/ranfdev/notifyd/internal/models"
)

// SharedInbox holds the collaborators every request shares. A request gets
// its own InboxH through GetInboxH.
type SharedInbox struct {
	manager *Manager
	sender  *Sender
}

func NewSharedInbox(manager *Manager, sender *Sender) *SharedInbox {
	return &SharedInbox{
		manager: manager,
		sender:  sender,
	}
}

// InboxH is a handle to the notifications a user is allowed to see.
// Every method checks the user's perms before touching anything.
type InboxH struct {
	user    models.User
	manager *Manager
	sender  *Sender
}

func (si *SharedInbox) GetInboxH(user models.User) InboxH {
	return InboxH{
		user:    user,
		manager: si.manager,
		sender:  si.sender,
	}
}

func (h InboxH) User() models.User {
	return h.user
}

// checkRecipient lets the recipient act on their own inbox with perm, and
// anyone holding PermManageAll act on any inbox.
func (h InboxH) checkRecipient(toID int64, perm models.Perm) error {
	if h.user.Can(models.PermManageAll) {
		return nil
	}
	if h.user.ID != toID {
		return models.ErrMissingPerms{Perms: []models.Perm{models.PermManageAll}}
	}
	return h.user.Perms.Require(perm)
}

// find resolves id on behalf of the user. Someone else's notification
// looks missing unless the user holds PermManageAll.
func (h InboxH) find(ctx context.Context, id int64, perm models.Perm) (models.NotifView, error) {
	manageAll := h.user.Can(models.PermManageAll)
	if !manageAll {
		if err := h.user.Perms.Require(perm); err != nil {
			return models.NotifView{}, err
		}
	}
	view, err := h.manager.Find(ctx, id)
	if err != nil {
		return models.NotifView{}, err
	}
	if !manageAll && view.ToID != h.user.ID {
		return models.NotifView{}, fmt.Errorf("notification %d: %w", id, ErrNotFound)
	}
	return view, nil
}

func (h InboxH) Find(ctx context.Context, id int64) (models.NotifView, error) {
	return h.find(ctx, id, models.PermReadOwn)
}

func (h InboxH) ReadOne(ctx context.Context, id int64) (int64, error) {
	view, err := h.find(ctx, id, models.PermReadOwn)
	if err != nil {
		return 0, err
	}
	return h.manager.readView(ctx, view)
}

func (h InboxH) ReadAll(ctx context.Context, toID int64) (int64, error) {
	if err := h.checkRecipient(toID, models.PermReadOwn); err != nil {
		return 0, err
	}
	return h.manager.ReadAll(ctx, toID)
}

func (h InboxH) Delete(ctx context.Context, id int64) (bool, error) {
	view, err := h.find(ctx, id, models.PermDeleteOwn)
	if err != nil {
		return false, err
	}
	return h.manager.deleteView(ctx, view)
}

func (h InboxH) DeleteAll(ctx context.Context, toID int64) (bool, error) {
	if err := h.checkRecipient(toID, models.PermDeleteOwn); err != nil {
		return false, err
	}
	return h.manager.DeleteAll(ctx, toID)
}

func (h InboxH) GetAll(ctx context.Context, toID int64, p Page, filter Filter) ([]models.NotifView, error) {
	if err := h.checkRecipient(toID, models.PermReadOwn); err != nil {
		return nil, err
	}
	return h.manager.GetAll(ctx, toID, p, filter)
}

func (h InboxH) CountNotRead(ctx context.Context, toID int64) (int64, error) {
	if err := h.checkRecipient(toID, models.PermReadOwn); err != nil {
		return 0, err
	}
	return h.manager.CountNotRead(ctx, toID)
}

// SendOne sends n on behalf of the user. A zero FromID defaults to the
// user's own id.
func (h InboxH) SendOne(ctx context.Context, n models.Notification) (int64, error) {
	if err := h.user.Perms.Require(models.PermSendOne); err != nil {
		return 0, err
	}
	if n.FromID == 0 {
		n.FromID = h.user.ID
	}
	if err := Validate(n); err != nil {
		return 0, err
	}
	id, ok := h.sender.SendOne(ctx, n)
	if !ok {
		return 0, fmt.Errorf("%w: sending notification", ErrOperationFailed)
	}
	return id, nil
}

func (h InboxH) SendMultiple(ctx context.Context, ns []models.Notification) ([]int64, error) {
	if err := h.user.Perms.Require(models.PermSendBroadcast); err != nil {
		return nil, err
	}
	for i := range ns {
		if ns[i].FromID == 0 {
			ns[i].FromID = h.user.ID
		}
		if err := Validate(ns[i]); err != nil {
			return nil, fmt.Errorf("notification %d: %w", i, err)
		}
	}
	ids, ok := h.sender.SendMultiple(ctx, ns)
	if !ok {
		return nil, fmt.Errorf("%w: sending %d notifications", ErrOperationFailed, len(ns))
	}
	return ids, nil
}
