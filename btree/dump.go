// Copyright 2023 Molecula Corp. All rights reserved.

package btree

import (
	"fmt"

	"github.com/featurebasedb/stratum/bufferpool"
)

// Dumps the tree to stdout. Debug only; takes no latches.
func (t *BTree) Dump() {
	fmt.Printf("btree(leafMaxSize: %d, internalMaxSize: %d)\n", t.leafMaxSize, t.internalMaxSize)
	rootID := t.RootPageID()
	if rootID == bufferpool.INVALID_PAGE {
		fmt.Println("(empty)")
		return
	}
	node, err := t.fetchNode(rootID)
	if err != nil {
		fmt.Printf("error fetching root: %v\n", err)
		return
	}
	t.nodeDump(node, 0)
	t.pool.UnpinPage(node.id(), false)
}

func (t *BTree) nodeDump(n *node, l int) {
	fmt.Printf("%snode(%d) --> leafNode: %v, size: %d, parent: %d\n", fmt.Sprintf("%*s", l, ""), n.id(), n.isLeaf(), n.size(), n.parent())

	if n.isLeaf() {
		keys := ""
		for i := int32(0); i < n.size(); i++ {
			if i > 0 {
				keys += ", "
			}
			keys += fmt.Sprintf("%d", n.leafKeyAt(i))
		}
		fmt.Printf("%skeys [%s] next: %d\n", fmt.Sprintf("%*s", l+2, ""), keys, n.next())
	} else {
		fmt.Printf("%ssep-keys [\n", fmt.Sprintf("%*s", l+2, ""))
		for i := int32(0); i < n.size(); i++ {
			if i == 0 {
				fmt.Printf("%s(leftmost)\n", fmt.Sprintf("%*s", l+4, ""))
			} else {
				fmt.Printf("%s>=%d\n", fmt.Sprintf("%*s", l+4, ""), n.keyAt(i))
			}
			cn, err := t.fetchNode(n.childAt(i))
			if err != nil {
				fmt.Printf("%serror: %v\n", fmt.Sprintf("%*s", l+6, ""), err)
				continue
			}
			t.nodeDump(cn, l+6)
			t.pool.UnpinPage(cn.id(), false)
		}
		fmt.Printf("%s]\n", fmt.Sprintf("%*s", l+2, ""))
	}
}
